package resilience

import (
	"context"

	"github.com/MrWong99/voxhire/pkg/provider/tts"
	"github.com/MrWong99/voxhire/pkg/types"
)

// TTSFallback implements [tts.Provider] over a [FallbackGroup] of TTS backends.
// Only stream setup fails over; a stream that breaks mid-reply just ends.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var (
	_ tts.Provider  = (*TTSFallback)(nil)
	_ tts.Describer = (*TTSFallback)(nil)
)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another TTS backend.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// SynthesizeStream starts a stream on the first backend whose breaker admits
// the call.
//
// The text channel can only be consumed once, so it is buffered up front and
// replayed to whichever backend is tried.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	var frags []string
	for frag := range text {
		frags = append(frags, frag)
	}
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, replay(frags), voice)
	})
}

// ListVoices returns the voices of the first backend that answers.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// OutputFormat reports the primary's format, or PCM at 16 kHz when the primary
// does not describe itself.
func (f *TTSFallback) OutputFormat() tts.Format {
	if d, ok := f.group.Primary().(tts.Describer); ok {
		return d.OutputFormat()
	}
	return tts.Format{MimeType: "audio/pcm", SampleRate: 16000}
}

func replay(frags []string) <-chan string {
	ch := make(chan string, len(frags))
	for _, f := range frags {
		ch <- f
	}
	close(ch)
	return ch
}

// Available reports whether any backend would accept a call right now.
func (f *TTSFallback) Available() bool { return f.group.Available() }
