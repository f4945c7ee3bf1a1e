package deepgram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrWong99/voxhire/pkg/provider/stt"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestBuildURL_KeytermsForNova3(t *testing.T) {
	p, _ := New("key")
	raw, err := p.buildURL(stt.Options{Language: "de", Prompt: "Kubernetes, Go ,"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(raw)
	q := u.Query()
	if q.Get("language") != "de" {
		t.Errorf("language = %q, want de", q.Get("language"))
	}
	if got := q["keyterm"]; len(got) != 2 || got[0] != "Kubernetes" || got[1] != "Go" {
		t.Errorf("keyterm = %v", got)
	}
	if q.Has("keywords") {
		t.Error("nova-3 should not send keywords")
	}
}

func TestBuildURL_KeywordsForOlderModels(t *testing.T) {
	p, _ := New("key", WithModel("nova-2"))
	raw, _ := p.buildURL(stt.Options{Prompt: "React"})
	u, _ := url.Parse(raw)
	if got := u.Query().Get("keywords"); got != "React:2" {
		t.Errorf("keywords = %q, want React:2", got)
	}
}

func TestTranscribe(t *testing.T) {
	var gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"results":{"channels":[{"alternatives":[{"transcript":"I know React ","confidence":0.93}]}]}}`)
	}))
	defer srv.Close()

	p, _ := New("secret", WithEndpoint(srv.URL))
	text, err := p.Transcribe(context.Background(), make([]byte, 640), stt.Options{MimeType: stt.MimePCM})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "I know React" {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Token secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotType != stt.MimeWAV {
		t.Errorf("Content-Type = %q, want %q", gotType, stt.MimeWAV)
	}
	if len(gotBody) != 44+640 {
		t.Errorf("body length = %d, want %d", len(gotBody), 44+640)
	}
}

func TestTranscribe_NoAlternatives(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":{"channels":[]}}`)
	}))
	defer srv.Close()

	p, _ := New("secret", WithEndpoint(srv.URL))
	text, err := p.Transcribe(context.Background(), []byte{1, 2}, stt.Options{MimeType: stt.MimeWebM})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("bad", WithEndpoint(srv.URL))
	if _, err := p.Transcribe(context.Background(), []byte{1, 2}, stt.Options{}); err == nil {
		t.Fatal("expected error for 401")
	}
}
