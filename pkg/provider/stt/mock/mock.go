// Package mock provides a test double for the stt.Provider interface.
//
// Results are consumed in order; once exhausted the Text/Err defaults apply.
//
// Example:
//
//	p := &mock.Provider{Results: []mock.Result{
//	    {Err: errors.New("backend down")},
//	    {Text: "I have 5 years of React experience"},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxhire/pkg/provider/stt"
)

// Result is one scripted Transcribe outcome.
type Result struct {
	Text string
	Err  error
}

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Audio is a copy of the bytes passed to Transcribe.
	Audio []byte
	// Opts is the Options value passed to Transcribe.
	Opts stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order, one per call.
	Results []Result

	// Text and Err are returned once Results is exhausted.
	Text string
	Err  error

	// TranscribeFunc, if set, overrides all scripted results. It runs outside
	// the mock's lock so it may block.
	TranscribeFunc func(ctx context.Context, audio []byte, opts stt.Options) (string, error)

	// TranscribeCalls records every call in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, opts stt.Options) (string, error) {
	p.mu.Lock()
	buf := make([]byte, len(audio))
	copy(buf, audio)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Audio: buf, Opts: opts})

	if fn := p.TranscribeFunc; fn != nil {
		p.mu.Unlock()
		return fn(ctx, audio, opts)
	}
	defer p.mu.Unlock()
	if len(p.Results) > 0 {
		r := p.Results[0]
		p.Results = p.Results[1:]
		return r.Text, r.Err
	}
	return p.Text, p.Err
}

// CallCount returns the number of Transcribe calls so far. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

var _ stt.Provider = (*Provider)(nil)
