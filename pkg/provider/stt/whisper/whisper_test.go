package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/voxhire/pkg/provider/stt"
	"github.com/MrWong99/voxhire/pkg/provider/stt/whisper"
)

// inferenceRequest captures what the mock server received.
type inferenceRequest struct {
	fileName string
	header   []byte
	fields   map[string]string
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText and records each request.
func newMockServer(t *testing.T, responseText string, status int) (*httptest.Server, func() []inferenceRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []inferenceRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec := inferenceRequest{fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			rec.fields[k] = v[0]
		}
		if f, fh, err := r.FormFile("file"); err == nil {
			rec.fileName = fh.Filename
			head := make([]byte, 4)
			_, _ = io.ReadFull(f, head)
			rec.header = head
			f.Close()
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), reqs...)
	}
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_PCMWrappedInWAV(t *testing.T) {
	t.Parallel()
	srv, requests := newMockServer(t, " I have 5 years of React experience ", http.StatusOK)

	p, err := whisper.New(srv.URL, whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), make([]byte, 3200), stt.Options{
		Language: "en-US",
		Prompt:   "React, TypeScript",
		MimeType: stt.MimePCM,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "I have 5 years of React experience" {
		t.Errorf("text = %q", text)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	got := reqs[0]
	if got.fileName != "audio.wav" {
		t.Errorf("file name = %q, want audio.wav", got.fileName)
	}
	if string(got.header) != "RIFF" {
		t.Errorf("payload header = %q, want RIFF", got.header)
	}
	if got.fields["language"] != "en" {
		t.Errorf("language = %q, want en", got.fields["language"])
	}
	if got.fields["prompt"] != "React, TypeScript" {
		t.Errorf("prompt = %q", got.fields["prompt"])
	}
	if got.fields["model"] != "base.en" {
		t.Errorf("model = %q", got.fields["model"])
	}
}

func TestTranscribe_WebMForwarded(t *testing.T) {
	t.Parallel()
	srv, requests := newMockServer(t, "hello", http.StatusOK)
	p, _ := whisper.New(srv.URL)

	webm := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00}
	if _, err := p.Transcribe(context.Background(), webm, stt.Options{MimeType: "audio/webm;codecs=opus"}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	reqs := requests()
	if reqs[0].fileName != "audio.webm" {
		t.Errorf("file name = %q, want audio.webm", reqs[0].fileName)
	}
	if string(reqs[0].header) != string(webm[:4]) {
		t.Error("webm payload was modified")
	}
}

func TestTranscribe_BlankAudioIsEmpty(t *testing.T) {
	t.Parallel()
	srv, _ := newMockServer(t, "[BLANK_AUDIO]", http.StatusOK)
	p, _ := whisper.New(srv.URL)

	text, err := p.Transcribe(context.Background(), make([]byte, 100), stt.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()
	srv, _ := newMockServer(t, "", http.StatusInternalServerError)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), make([]byte, 100), stt.Options{}); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()
	p, _ := whisper.New("http://127.0.0.1:1")
	if _, err := p.Transcribe(context.Background(), nil, stt.Options{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()
	srv, _ := newMockServer(t, "x", http.StatusOK)
	p, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, make([]byte, 10), stt.Options{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
