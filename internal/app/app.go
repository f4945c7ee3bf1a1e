// Package app wires all voxhire subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore, WithMetrics).
// When an option is not provided, New creates real implementations from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxhire/internal/config"
	"github.com/MrWong99/voxhire/internal/health"
	"github.com/MrWong99/voxhire/internal/interview"
	"github.com/MrWong99/voxhire/internal/observe"
	"github.com/MrWong99/voxhire/internal/transport/ws"
	"github.com/MrWong99/voxhire/pkg/memory"
	"github.com/MrWong99/voxhire/pkg/memory/postgres"
	"github.com/MrWong99/voxhire/pkg/provider/llm"
	"github.com/MrWong99/voxhire/pkg/provider/stt"
	"github.com/MrWong99/voxhire/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT     stt.Provider
	LLM     llm.Provider
	PlanLLM llm.Provider
	TTS     tts.Provider

	// Probe decides when a session may leave browser speech recognition.
	// When nil and STT reports availability (the resilience wrappers do),
	// that is used instead.
	Probe interview.PipelineProbe

	// Names label provider metrics.
	Names interview.ProviderNames
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       atomic.Pointer[config.Config]
	providers *Providers

	store          memory.Store
	metrics        *observe.Metrics
	metricsHandler http.Handler

	hub      *ws.Hub
	sessions *SessionManager
	health   *health.Handler
	handler  http.Handler
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopped     chan struct{}
	stopOnce    sync.Once
	shutdownErr error
}

const defaultShutdownTimeout = 15 * time.Second

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of creating one from config.
func WithStore(s memory.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the metrics instruments and the handler that serves them.
// A nil handler leaves the metrics path unmounted.
func WithMetrics(m *observe.Metrics, handler http.Handler) Option {
	return func(a *App) {
		a.metrics = m
		a.metricsHandler = handler
	}
}

// WithCloser registers fn to run at the end of Shutdown.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		providers: providers,
		stopped:   make(chan struct{}),
	}
	a.cfg.Store(cfg)
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Memory store ──────────────────────────────────────────────────
	if err := a.initMemory(ctx); err != nil {
		return nil, fmt.Errorf("app: init memory: %w", err)
	}

	// ── 2. Transport + sessions ──────────────────────────────────────────
	a.hub = ws.NewHub(nil,
		ws.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		ws.WithMetrics(a.metrics),
	)
	a.sessions = NewSessionManager(SessionManagerConfig{
		Store:     a.store,
		Providers: providers,
		Sink:      a.hub,
		Metrics:   a.metrics,
		Config:    a.Config,
	})
	a.hub.SetSessions(a.sessions)

	// ── 3. Health ────────────────────────────────────────────────────────
	a.health = health.New(a.checkers()...)

	// ── 4. HTTP ──────────────────────────────────────────────────────────
	a.handler = a.routes()
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("app initialised",
		"store", fmt.Sprintf("%T", a.store),
		"stt", providers.STT != nil,
		"llm", providers.LLM != nil,
		"tts", providers.TTS != nil,
	)
	return a, nil
}

// initMemory connects the postgres store when a DSN is configured and falls
// back to an in-process store otherwise.
func (a *App) initMemory(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	cfg := a.Config()
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("no postgres_dsn configured, interviews are kept in memory only")
		a.store = memory.NewMemStore()
		return nil
	}

	store, err := postgres.NewStore(ctx, cfg.Memory.PostgresDSN)
	if err != nil {
		return err
	}
	if cfg.Memory.Migrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		slog.Info("database migrations applied")
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// checkers builds the readiness checks. The store is required; provider
// breakers only degrade readiness since a session can run on browser speech.
func (a *App) checkers() []health.Checker {
	var cs []health.Checker
	if p, ok := a.store.(memory.Pinger); ok {
		cs = append(cs, health.Checker{Name: "store", Check: p.Ping})
	}
	slots := []struct {
		name string
		p    any
	}{
		{"stt", a.providers.STT},
		{"llm", a.providers.LLM},
		{"tts", a.providers.TTS},
	}
	for _, s := range slots {
		av, ok := s.p.(availability)
		if !ok {
			continue
		}
		name := s.name
		cs = append(cs, health.Checker{
			Name:     name,
			Optional: true,
			Check: func(context.Context) error {
				if !av.Available() {
					return fmt.Errorf("%s: every circuit breaker is open", name)
				}
				return nil
			},
		})
	}
	return cs
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Config returns the current configuration.
func (a *App) Config() *config.Config { return a.cfg.Load() }

// UpdateConfig swaps the configuration used for sessions created from now on.
// Sections that need a restart are logged and otherwise ignored.
func (a *App) UpdateConfig(next *config.Config) {
	prev := a.cfg.Load()
	d := config.Diff(prev, next)
	a.cfg.Store(next)
	if d.InterviewChanged {
		slog.Info("interview settings reloaded, applying to new sessions", "fields", d.InterviewFields)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session registry.
func (a *App) Sessions() *SessionManager { return a.sessions }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured listen address and blocks until ctx is
// cancelled, Shutdown is called or the server fails. Cancelling ctx shuts the
// app down within the configured shutdown timeout; a later Shutdown call
// returns that result.
func (a *App) Run(ctx context.Context) error {
	cfg := a.Config()
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	slog.Info("http server listening", "addr", ln.Addr().String(), "tls", cfg.Server.TLS != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-a.stopped:
			return nil
		}
		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return a.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting interviews, disposes every session, closes client
// connections and stops the HTTP server. It is safe to call more than once;
// later calls return the first call's result.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		var errs []error
		defer func() { a.shutdownErr = errors.Join(errs...) }()

		a.health.SetDraining()

		// Disposed sessions flush a final turn_state to their clients before
		// the hub closes the sockets.
		n := a.sessions.Len()
		a.sessions.Shutdown()
		a.hub.Close()
		slog.Info("interview sessions released", "count", n)

		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		close(a.stopped)

		for _, fn := range a.closers {
			if ctx.Err() != nil {
				errs = append(errs, fmt.Errorf("app: shutdown deadline exceeded: %w", ctx.Err()))
				return
			}
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return a.shutdownErr
}
