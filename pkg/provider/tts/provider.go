// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, OpenAI, or
// a local Coqui server) and presents a uniform streaming interface. The primary
// entry point is SynthesizeStream, which accepts a channel of text fragments
// and returns a channel of raw audio bytes as they become available.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/voxhire/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and returns
	// a channel that emits audio byte slices as they are synthesised.
	//
	// The returned audio channel is closed by the implementation when all text
	// has been synthesised or when ctx is cancelled. The caller must drain it.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// during synthesis close the audio channel early; callers check ctx.Err()
	// to distinguish cancellation from provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}

// Format describes the audio produced by a provider, so the client knows how
// to play back audio_playback chunks.
type Format struct {
	// MimeType is e.g. "audio/pcm" or "audio/mpeg".
	MimeType string

	// SampleRate is set for PCM output.
	SampleRate int
}

// Describer is implemented by providers that know their output format.
type Describer interface {
	OutputFormat() Format
}

// Text returns a closed channel carrying the single fragment s. It adapts a
// complete reply to the streaming SynthesizeStream contract.
func Text(s string) <-chan string {
	ch := make(chan string, 1)
	ch <- s
	close(ch)
	return ch
}
