// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/voxhire/pkg/audio"
	"github.com/MrWong99/voxhire/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var _ stt.Provider = (*NativeProvider)(nil)

// errUnsupportedFormat is returned for container formats the native engine
// cannot decode.
var errUnsupportedFormat = errors.New("whisper: native provider accepts only PCM or WAV audio")

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared across all sessions.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs inference on a fresh whisper context. Contexts are not
// thread-safe but the model is, so concurrent calls are fine.
func (p *NativeProvider) Transcribe(ctx context.Context, data []byte, opts stt.Options) (string, error) {
	if len(data) == 0 {
		return "", stt.ErrEmptyAudio
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	samples, err := toSamples(data, opts)
	if err != nil {
		return "", err
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}
	if err := wctx.SetLanguage(baseLanguage(lang)); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	if opts.Prompt != "" {
		wctx.SetInitialPrompt(opts.Prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return cleanTranscript(strings.Join(parts, " ")), nil
}

// toSamples converts PCM or WAV input to 16 kHz mono float32 samples.
func toSamples(data []byte, opts stt.Options) ([]float32, error) {
	src := audio.Format{SampleRate: opts.SampleRate, Channels: 1}
	if src.SampleRate <= 0 {
		src.SampleRate = stt.DefaultSampleRate
	}

	switch stt.NormalizeMime(opts.MimeType) {
	case stt.MimePCM:
	case stt.MimeWAV:
		pcm, f, err := audio.DecodeWAV(data)
		if err != nil {
			return nil, fmt.Errorf("whisper: %w", err)
		}
		data, src = pcm, f
	default:
		return nil, errUnsupportedFormat
	}

	mono, err := audio.ToMono16(data, src, whisperlib.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return pcmToFloat32(mono), nil
}
