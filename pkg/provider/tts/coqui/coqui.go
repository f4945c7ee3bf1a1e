// Package coqui provides a TTS provider backed by a locally running Coqui TTS
// server (ghcr.io/coqui-ai/tts-cpu) via its REST API.
//
// The server synthesises one utterance per GET /api/tts call and answers with
// a WAV file. SynthesizeStream splits the reply into sentences and requests
// them with a small lookahead so the first sentence plays while later ones
// are still being rendered.
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	audio, err := p.SynthesizeStream(ctx, tts.Text(reply), voice)
package coqui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/MrWong99/voxhire/pkg/audio"
	"github.com/MrWong99/voxhire/pkg/provider/tts"
	"github.com/MrWong99/voxhire/pkg/types"
)

const (
	defaultTimeout  = 30 * time.Second
	apiTTSEndpoint  = "/api/tts"
	detailsEndpoint = "/details"

	// sentenceLookahead bounds in-flight synthesis requests.
	sentenceLookahead = 3

	pcmChunkSize = 4096
)

var (
	_ tts.Provider  = (*Provider)(nil)
	_ tts.Describer = (*Provider)(nil)
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language_id sent to multilingual models. Empty (the
// default) omits the parameter.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithOutputSampleRate resamples synthesised PCM to rate. Zero keeps the
// model's native rate, which then must be known to the client.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	outputRate int
	httpClient *http.Client
}

// New creates a Provider for the server at serverURL (e.g., "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		outputRate: 22050,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// OutputFormat implements tts.Describer.
func (p *Provider) OutputFormat() tts.Format {
	return tts.Format{MimeType: "audio/pcm", SampleRate: p.outputRate}
}

// audioResult carries one sentence's PCM or an error.
type audioResult struct {
	pcm []byte
	err error
}

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	audioCh := make(chan []byte, 64)

	go func() {
		defer close(audioCh)

		// Ordered futures: the collector drains them in sentence order.
		queue := make(chan chan audioResult, sentenceLookahead)

		go func() {
			defer close(queue)
			var buf strings.Builder
			dispatch := func(sentence string) bool {
				out := make(chan audioResult, 1)
				select {
				case queue <- out:
				case <-ctx.Done():
					return false
				}
				go func() {
					pcm, err := p.synthesize(ctx, sentence, voice)
					out <- audioResult{pcm: pcm, err: err}
				}()
				return true
			}
			for {
				select {
				case frag, ok := <-text:
					if !ok {
						if rest := strings.TrimSpace(buf.String()); rest != "" {
							dispatch(rest)
						}
						return
					}
					buf.WriteString(frag)
					for {
						s := buf.String()
						idx := findSentenceBoundary(s)
						if idx < 0 {
							break
						}
						buf.Reset()
						buf.WriteString(s[idx+1:])
						if sentence := strings.TrimSpace(s[:idx+1]); sentence != "" {
							if !dispatch(sentence) {
								return
							}
						}
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		for fut := range queue {
			var res audioResult
			select {
			case res = <-fut:
			case <-ctx.Done():
				return
			}
			if res.err != nil {
				return
			}
			for pcm := res.pcm; len(pcm) > 0; {
				end := min(pcmChunkSize, len(pcm))
				select {
				case audioCh <- pcm[:end]:
				case <-ctx.Done():
					return
				}
				pcm = pcm[end:]
			}
		}
	}()

	return audioCh, nil
}

// synthesize renders one sentence and returns mono PCM at the output rate.
func (p *Provider) synthesize(ctx context.Context, sentence string, voice types.VoiceProfile) ([]byte, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", apiTTSEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}

	pcm, f, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	if p.outputRate <= 0 {
		return pcm, nil
	}
	return audio.ToMono16(pcm, f, p.outputRate)
}

// detailsResponse is the JSON body returned by GET /details.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Speakers  []string `json:"speakers"`
}

// ListVoices returns one profile per speaker of a multi-speaker model, or a
// single profile named after the model.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+detailsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", detailsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", detailsEndpoint, resp.StatusCode)
	}

	var details detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}

	if len(details.Speakers) > 0 {
		speakers := append([]string(nil), details.Speakers...)
		sort.Strings(speakers)
		profiles := make([]types.VoiceProfile, 0, len(speakers))
		for _, spk := range speakers {
			profiles = append(profiles, types.VoiceProfile{
				ID:       spk,
				Name:     spk,
				Provider: "coqui",
				Metadata: map[string]string{"model_name": details.ModelName},
			})
		}
		return profiles, nil
	}

	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []types.VoiceProfile{{ID: "", Name: name, Provider: "coqui"}}, nil
}

// findSentenceBoundary returns the index of the first '.', '!' or '?' that is
// at the end of s or followed by whitespace, or -1. "3.14" and "Dr.Smith" are
// not boundaries.
func findSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
