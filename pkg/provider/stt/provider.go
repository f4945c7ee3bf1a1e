// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (e.g., a local
// whisper.cpp server, whisper.cpp in-process, or the OpenAI transcription API)
// behind a single call: one completed candidate turn in, one transcript out.
// Turn segmentation happens upstream in the interview orchestrator, so
// providers never see partial utterances.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"strings"
)

// Audio MIME types understood by the built-in providers.
const (
	// MimePCM is raw 16-bit signed little-endian mono PCM. The sample rate is
	// carried in Options.SampleRate.
	MimePCM = "audio/pcm"

	// MimeWAV is a RIFF/WAV container.
	MimeWAV = "audio/wav"

	// MimeWebM is a WebM/Opus container as produced by browser MediaRecorder.
	MimeWebM = "audio/webm"

	// MimeOGG is an Ogg/Opus container.
	MimeOGG = "audio/ogg"
)

// DefaultSampleRate is assumed for MimePCM audio when Options.SampleRate is zero.
const DefaultSampleRate = 16000

// ErrEmptyAudio is returned when Transcribe is called without audio bytes.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Options carries recognition hints for a single Transcribe call.
type Options struct {
	// Language is the BCP-47 language tag (e.g., "en", "de-DE"). Empty lets the
	// provider auto-detect, if supported.
	Language string

	// Prompt biases recognition toward expected vocabulary, for example the
	// skills listed in a job description.
	Prompt string

	// MimeType describes the encoding of the audio bytes. Empty means MimePCM.
	MimeType string

	// SampleRate is the PCM sample rate in Hz. Only used for MimePCM.
	SampleRate int
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts a complete utterance into text. A successful call may
	// return an empty string when no speech was recognised; callers treat that
	// as an empty turn, not an error.
	Transcribe(ctx context.Context, audio []byte, opts Options) (string, error)
}

// NormalizeMime strips parameters (";codecs=opus") and lower-cases a MIME
// type. An empty input yields MimePCM.
func NormalizeMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "":
		return MimePCM
	case "audio/x-wav", "audio/wave":
		return MimeWAV
	case "audio/l16", "audio/raw":
		return MimePCM
	}
	return mime
}

// FileName returns a file name whose extension matches mime. Upload APIs
// sniff the format from it.
func FileName(mime string) string {
	switch NormalizeMime(mime) {
	case MimeWAV, MimePCM:
		return "audio.wav"
	case MimeWebM:
		return "audio.webm"
	case MimeOGG, "audio/opus":
		return "audio.ogg"
	case "audio/mpeg", "audio/mp3":
		return "audio.mp3"
	case "audio/mp4", "audio/m4a", "audio/aac":
		return "audio.m4a"
	}
	return "audio.bin"
}
