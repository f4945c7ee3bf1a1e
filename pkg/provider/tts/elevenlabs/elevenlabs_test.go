package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxhire/pkg/provider/tts"
	"github.com/MrWong99/voxhire/pkg/types"
)

// fakeServer is a minimal ElevenLabs stream-input endpoint. It echoes every
// non-empty text fragment back as base64 "audio" and finishes on the empty
// end-of-stream message.
func fakeServer(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		first := true
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg map[string]any
			_ = json.Unmarshal(data, &msg)
			text, _ := msg["text"].(string)
			if first {
				first = false
				if msg["xi_api_key"] != "key" {
					conn.Close(websocket.StatusPolicyViolation, "bad key")
					return
				}
				continue
			}
			if text == "" {
				final, _ := json.Marshal(audioResponse{IsFinal: true})
				_ = conn.Write(ctx, websocket.MessageText, final)
				return
			}
			mu.Lock()
			texts = append(texts, text)
			mu.Unlock()
			resp, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString([]byte(strings.TrimSpace(text)))})
			_ = conn.Write(ctx, websocket.MessageText, resp)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), texts...)
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestSynthesizeStream(t *testing.T) {
	srv, sent := fakeServer(t)
	wsFmt := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/%s/stream-input?model_id=%s"

	p, err := New("key", withEndpoints(wsFmt, srv.URL), WithDefaultVoice("voice-1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	audio, err := p.SynthesizeStream(ctx, tts.Text("Tell me about your last project."), types.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	var got []string
	for chunk := range audio {
		got = append(got, string(chunk))
	}
	if len(got) != 1 || got[0] != "Tell me about your last project." {
		t.Errorf("audio chunks = %q", got)
	}
	if s := sent(); len(s) != 1 {
		t.Errorf("server received %d fragments, want 1", len(s))
	}
}

func TestSynthesizeStream_NoVoice(t *testing.T) {
	p, _ := New("key")
	if _, err := p.SynthesizeStream(context.Background(), tts.Text("hi"), types.VoiceProfile{}); err == nil {
		t.Fatal("expected error without a voice")
	}
}

func TestListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(voicesResponse{Voices: []elevenLabsVoice{
			{VoiceID: "v1", Name: "Rachel", Category: "premade", Labels: map[string]string{"accent": "american"}},
		}})
	}))
	defer srv.Close()

	p, _ := New("key", withEndpoints(wsEndpointFmt, srv.URL))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 {
		t.Fatalf("expected 1 voice, got %d", len(voices))
	}
	v := voices[0]
	if v.ID != "v1" || v.Provider != "elevenlabs" {
		t.Errorf("voice = %+v", v)
	}
	if v.Metadata["category"] != "premade" || v.Metadata["accent"] != "american" {
		t.Errorf("metadata = %v", v.Metadata)
	}
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		format string
		want   tts.Format
	}{
		{"pcm_16000", tts.Format{MimeType: "audio/pcm", SampleRate: 16000}},
		{"pcm_24000", tts.Format{MimeType: "audio/pcm", SampleRate: 24000}},
		{"mp3_44100_128", tts.Format{MimeType: "audio/mpeg"}},
	}
	for _, tc := range tests {
		p, _ := New("key", WithOutputFormat(tc.format))
		if got := p.OutputFormat(); got != tc.want {
			t.Errorf("%s: OutputFormat() = %+v, want %+v", tc.format, got, tc.want)
		}
	}
}
