// Package openai provides a TTS provider backed by the OpenAI speech endpoint.
// Audio is requested as raw 24 kHz PCM and streamed to the caller in chunks
// as the HTTP body arrives.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxhire/pkg/provider/tts"
	"github.com/MrWong99/voxhire/pkg/types"
)

const (
	defaultVoice = "alloy"
	sampleRate   = 24000

	// chunkSize is ~85 ms of 24 kHz mono PCM.
	chunkSize = 4096
)

// builtinVoices are the voices the speech endpoint accepts.
var builtinVoices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer", "verse"}

var (
	_ tts.Provider  = (*Provider)(nil)
	_ tts.Describer = (*Provider)(nil)
)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	defaultVoice string
}

type config struct {
	baseURL string
	timeout time.Duration
	voice   string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithDefaultVoice sets the voice used when the interview has none configured.
func WithDefaultVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// New constructs a new OpenAI TTS Provider. An empty model selects tts-1.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.SpeechModelTTS1)
	}

	cfg := &config{voice: defaultVoice}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		defaultVoice: cfg.voice,
	}, nil
}

// OutputFormat implements tts.Describer.
func (p *Provider) OutputFormat() tts.Format {
	return tts.Format{MimeType: "audio/pcm", SampleRate: sampleRate}
}

// SynthesizeStream collects the text fragments into one request. The speech
// endpoint has no incremental input, so synthesis starts once text closes.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	voiceID := voice.ID
	if voiceID == "" {
		voiceID = p.defaultVoice
	}

	audioCh := make(chan []byte, 64)
	go func() {
		defer close(audioCh)

		var sb strings.Builder
		for {
			select {
			case frag, ok := <-text:
				if !ok {
					p.speak(ctx, strings.TrimSpace(sb.String()), voiceID, audioCh)
					return
				}
				sb.WriteString(frag)
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioCh, nil
}

// speak performs one speech request and forwards the body in chunks.
func (p *Provider) speak(ctx context.Context, input, voice string, out chan<- []byte) {
	if input == "" {
		return
	}
	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          input,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return
	}
	defer resp.Body.Close()

	for {
		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(resp.Body, buf)
		if n > 0 {
			select {
			case out <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// ListVoices returns the fixed catalogue of built-in voices.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	out := make([]types.VoiceProfile, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		out = append(out, types.VoiceProfile{ID: v, Name: v, Provider: "openai"})
	}
	return out, nil
}

// String is used in log lines.
func (p *Provider) String() string {
	return fmt.Sprintf("openai-tts(%s)", p.model)
}
