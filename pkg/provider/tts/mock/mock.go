// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{SynthesizeChunks: [][]byte{[]byte("a1"), []byte("a2")}}
//	ch, _ := p.SynthesizeStream(ctx, tts.Text("Hello"), voice)
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxhire/pkg/provider/tts"
	"github.com/MrWong99/voxhire/pkg/types"
)

// SynthesizeCall records a single invocation of SynthesizeStream.
type SynthesizeCall struct {
	// Text is the concatenation of all fragments read from the text channel.
	Text string
	// Voice is the VoiceProfile passed to SynthesizeStream.
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeChunks is emitted on the returned channel after the text
	// channel is drained.
	SynthesizeChunks [][]byte

	// ChunkDelay, if set, is slept before each emitted chunk.
	ChunkDelay time.Duration

	// SynthesizeErr, if non-nil, is returned instead of starting a stream.
	SynthesizeErr error

	// Voices is returned by ListVoices.
	Voices []types.VoiceProfile

	// Format is returned by OutputFormat.
	Format tts.Format

	// SynthesizeCalls records every call in order. Text is filled in once the
	// text channel has been drained.
	SynthesizeCalls []SynthesizeCall
}

// SynthesizeStream records the call and returns a channel emitting
// SynthesizeChunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	if p.SynthesizeErr != nil {
		p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Voice: voice})
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	idx := len(p.SynthesizeCalls)
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Voice: voice})
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	delay := p.ChunkDelay
	p.mu.Unlock()

	out := make(chan []byte, len(chunks))
	go func() {
		defer close(out)
		var sb strings.Builder
		for frag := range text {
			sb.WriteString(frag)
		}
		p.mu.Lock()
		p.SynthesizeCalls[idx].Text = sb.String()
		p.mu.Unlock()

		for _, c := range chunks {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ListVoices returns Voices.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, nil
}

// OutputFormat implements tts.Describer.
func (p *Provider) OutputFormat() tts.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Format
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

var (
	_ tts.Provider  = (*Provider)(nil)
	_ tts.Describer = (*Provider)(nil)
)
