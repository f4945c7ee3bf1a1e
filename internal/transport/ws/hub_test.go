package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voxhire/internal/config"
	"github.com/MrWong99/voxhire/internal/interview"
	memmock "github.com/MrWong99/voxhire/pkg/memory/mock"
	"github.com/MrWong99/voxhire/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxhire/pkg/provider/llm/mock"
	"github.com/MrWong99/voxhire/pkg/types"
)

type fakeSessions struct {
	hub *Hub

	mu       sync.Mutex
	live     map[string]*interview.Session
	released []string
}

func (f *fakeSessions) Get(_ context.Context, id string) (*interview.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.live[id]; ok {
		return s, nil
	}
	s := interview.NewSession(id, interview.Deps{
		Store: &memmock.Store{Context: &types.InterviewContext{
			InterviewID: id,
			Job:         types.Job{Title: "Backend Engineer", Skills: []string{"Go"}},
			Candidate:   types.Candidate{Name: "Ada"},
		}},
		LLM:  &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "What did you build with Go?"}},
		Sink: f.hub,
		Settings: config.InterviewConfig{
			TTSMode:           config.TTSBrowser,
			MinSpeechDelay:    5 * time.Millisecond,
			MaxSpeechDelay:    10 * time.Millisecond,
			PlanTimeout:       50 * time.Millisecond,
			GenerationTimeout: 200 * time.Millisecond,
		},
	})
	s.Start()
	f.live[id] = s
	return s, nil
}

func (f *fakeSessions) Release(id string) {
	f.mu.Lock()
	s := f.live[id]
	delete(f.live, id)
	f.released = append(f.released, id)
	f.mu.Unlock()
	if s != nil {
		s.Dispose()
	}
}

func (f *fakeSessions) releasedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

type received struct {
	Type        string          `json:"type"`
	InterviewID string          `json:"interview_id"`
	Payload     json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeSessions, *Hub) {
	t.Helper()
	fs := &fakeSessions{live: make(map[string]*interview.Session)}
	hub := NewHub(fs)
	fs.hub = hub
	mux := http.NewServeMux()
	mux.Handle("GET /ws/interviews/{id}", hub)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, fs, hub
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { c.CloseNow() })
	return c
}

// readUntil reads events until one of type typ arrives.
func readUntil(t *testing.T, c *websocket.Conn, typ string) received {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var msg received
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

func send(t *testing.T, c *websocket.Conn, msg Inbound) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, msg); err != nil {
		t.Fatalf("write %s: %v", msg.Type, err)
	}
}

func TestHub_GreetingAndTextTurn(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	cand := dial(t, srv, "/ws/interviews/iv-1")
	obs := dial(t, srv, "/ws/interviews/iv-1?role=observer")

	send(t, cand, Inbound{Type: MsgBegin})
	greeting := readUntil(t, cand, "ai_text")
	var ai interview.AITextPayload
	if err := json.Unmarshal(greeting.Payload, &ai); err != nil {
		t.Fatal(err)
	}
	if !ai.Greeting || !strings.HasPrefix(ai.Text, "Hello Ada") {
		t.Errorf("greeting = %+v", ai)
	}
	if greeting.InterviewID != "iv-1" {
		t.Errorf("interview id = %q", greeting.InterviewID)
	}
	readUntil(t, obs, "ai_text")
	readUntil(t, cand, "assistant_audio_done")
	readUntil(t, cand, "turn_state")

	send(t, cand, Inbound{Type: MsgText, Text: "I built a payments service in Go."})
	tr := readUntil(t, obs, "transcript")
	var tp interview.TranscriptPayload
	if err := json.Unmarshal(tr.Payload, &tp); err != nil {
		t.Fatal(err)
	}
	if tp.Text != "I built a payments service in Go." || tp.Source != "text" {
		t.Errorf("transcript = %+v", tp)
	}
	reply := readUntil(t, cand, "ai_text")
	if err := json.Unmarshal(reply.Payload, &ai); err != nil {
		t.Fatal(err)
	}
	if ai.Text != "What did you build with Go?" {
		t.Errorf("reply = %q", ai.Text)
	}
}

func TestHub_InvalidRole(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/ws/interviews/iv-1?role=recruiter")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHub_ReleaseOnLastCandidate(t *testing.T) {
	t.Parallel()
	srv, fs, hub := newTestServer(t)

	obs := dial(t, srv, "/ws/interviews/iv-2?role=observer")
	cand := dial(t, srv, "/ws/interviews/iv-2")
	waitFor(t, func() bool { return hub.Connections("iv-2") == 2 })

	obs.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return hub.Connections("iv-2") == 1 })
	if got := fs.releasedIDs(); len(got) != 0 {
		t.Fatalf("released after observer left: %v", got)
	}

	cand.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return len(fs.releasedIDs()) == 1 })
	if got := fs.releasedIDs()[0]; got != "iv-2" {
		t.Errorf("released %q, want iv-2", got)
	}
}

func TestHub_DisposeClosesConnections(t *testing.T) {
	t.Parallel()
	srv, fs, hub := newTestServer(t)
	cand := dial(t, srv, "/ws/interviews/iv-3")
	waitFor(t, func() bool { return hub.Connections("iv-3") == 1 })

	s, _ := fs.Get(context.Background(), "iv-3")
	s.Dispose()

	msg := readUntil(t, cand, "turn_state")
	var st interview.TurnStatePayload
	if err := json.Unmarshal(msg.Payload, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "disposed" {
		t.Errorf("state = %q, want disposed", st.State)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := cand.Read(ctx); websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("read after dispose = %v, want normal closure", err)
	}
}

func TestHub_ObserverInputIgnored(t *testing.T) {
	t.Parallel()
	srv, fs, _ := newTestServer(t)
	obs := dial(t, srv, "/ws/interviews/iv-4?role=observer")
	send(t, obs, Inbound{Type: MsgBegin})
	time.Sleep(50 * time.Millisecond)

	s, _ := fs.Get(context.Background(), "iv-4")
	if snap := s.Snapshot(); snap.Greeted {
		t.Error("observer started the interview")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
