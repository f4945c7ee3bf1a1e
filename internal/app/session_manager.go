package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/voxhire/internal/config"
	"github.com/MrWong99/voxhire/internal/interview"
	"github.com/MrWong99/voxhire/internal/observe"
	"github.com/MrWong99/voxhire/internal/transport/ws"
	"github.com/MrWong99/voxhire/pkg/memory"
)

// ErrShuttingDown is returned by [SessionManager.Get] once shutdown began.
var ErrShuttingDown = errors.New("app: shutting down")

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Store     memory.Store
	Providers *Providers
	Sink      interview.Sink
	Metrics   *observe.Metrics

	// Config returns the configuration new sessions are created with. It is
	// called once per created session, so a hot reload only affects sessions
	// started afterwards.
	Config func() *config.Config
}

// SessionManager owns the live interview sessions, at most one per interview
// id. All exported methods are safe for concurrent use.
type SessionManager struct {
	store     memory.Store
	providers *Providers
	sink      interview.Sink
	metrics   *observe.Metrics
	config    func() *config.Config
	probe     interview.PipelineProbe

	mu       sync.Mutex
	sessions map[string]*interview.Session
	closed   bool
}

var _ ws.Sessions = (*SessionManager)(nil)

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		store:     cfg.Store,
		providers: cfg.Providers,
		sink:      cfg.Sink,
		metrics:   cfg.Metrics,
		config:    cfg.Config,
		sessions:  make(map[string]*interview.Session),
	}
	if sm.providers == nil {
		sm.providers = &Providers{}
	}
	if sm.metrics == nil {
		sm.metrics = observe.DefaultMetrics()
	}
	if sm.config == nil {
		empty := &config.Config{}
		sm.config = func() *config.Config { return empty }
	}
	sm.probe = sm.providers.Probe
	if sm.probe == nil {
		if a, ok := sm.providers.STT.(availability); ok {
			sm.probe = interview.ProbeFunc(a.Available)
		}
	}
	return sm
}

// Get returns the live session for id, creating and starting one if needed.
// Starting is asynchronous; the session loads its context in the background.
func (sm *SessionManager) Get(ctx context.Context, id string) (*interview.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("app: get session: interview id is required")
	}
	sm.mu.Lock()
	if sm.closed {
		sm.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if s, ok := sm.sessions[id]; ok {
		sm.mu.Unlock()
		return s, nil
	}
	s := interview.NewSession(id, sm.deps(sm.config()))
	sm.sessions[id] = s
	sm.mu.Unlock()

	sm.metrics.ActiveSessions.Add(ctx, 1)
	s.Start()
	observe.Logger(observe.WithInterviewID(ctx, id)).Info("interview session created")
	return s, nil
}

func (sm *SessionManager) deps(cfg *config.Config) interview.Deps {
	p := sm.providers
	return interview.Deps{
		Store:         sm.store,
		STT:           p.STT,
		LLM:           p.LLM,
		PlanLLM:       p.PlanLLM,
		TTS:           p.TTS,
		Probe:         sm.probe,
		Sink:          sm.sink,
		Metrics:       sm.metrics,
		Names:         p.Names,
		Settings:      cfg.Interview,
		Transcript:    cfg.Transcript,
		HistoryWindow: cfg.Memory.HistoryWindow,
	}
}

// Lookup returns the live session for id without creating one.
func (sm *SessionManager) Lookup(id string) (*interview.Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	return s, ok
}

// Release disposes the session for id and forgets it. Unknown ids are
// ignored.
func (sm *SessionManager) Release(id string) {
	sm.release(id)
}

// release reports whether a session was live.
func (sm *SessionManager) release(id string) bool {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if !ok {
		return false
	}
	// Dispose emits events through the sink, so it runs unlocked.
	s.Dispose()
	sm.metrics.ActiveSessions.Add(context.Background(), -1)
	observe.Logger(observe.WithInterviewID(context.Background(), id)).Info("interview session released")
	return true
}

// Snapshots returns a view of every live session, ordered by interview id.
func (sm *SessionManager) Snapshots() []interview.Snapshot {
	sm.mu.Lock()
	live := make([]*interview.Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		live = append(live, s)
	}
	sm.mu.Unlock()

	out := make([]interview.Snapshot, len(live))
	for i, s := range live {
		out[i] = s.Snapshot()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InterviewID < out[j].InterviewID })
	return out
}

// Len returns the number of live sessions.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Shutdown disposes every live session and refuses new ones.
func (sm *SessionManager) Shutdown() {
	sm.mu.Lock()
	sm.closed = true
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.Unlock()

	for _, id := range ids {
		sm.release(id)
	}
}

// availability is implemented by the resilience fallback wrappers.
type availability interface {
	Available() bool
}
