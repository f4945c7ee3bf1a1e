package resilience

import (
	"context"

	"github.com/MrWong99/voxhire/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] over a [FallbackGroup] of STT backends.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another STT backend.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe sends audio to the first backend whose breaker admits the call.
// [stt.ErrEmptyAudio] is returned directly and never trips a breaker.
func (f *STTFallback) Transcribe(ctx context.Context, audio []byte, opts stt.Options) (string, error) {
	if len(audio) == 0 {
		return "", stt.ErrEmptyAudio
	}
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, audio, opts)
	})
}

// Available reports whether any backend would accept a call right now.
func (f *STTFallback) Available() bool { return f.group.Available() }

// Names returns the backend names in try order.
func (f *STTFallback) Names() []string { return f.group.Names() }
