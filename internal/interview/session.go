// Package interview implements the per-interview turn-taking state machine.
//
// A [Session] owns everything that happens between a candidate finishing a
// thought and the interviewer finishing its reply: audio buffering and
// end-of-turn detection, speech recognition, reply generation, speech
// delivery and the health monitor that moves a struggling candidate onto
// browser speech recognition.
//
// All mutable state is guarded by a single mutex. Provider calls always run
// with the lock released and re-check the state when they return, so a
// session can be disposed at any point without waiting for a backend.
//
// Outbound events go through a [Sink]. They are emitted with the lock held,
// which keeps their order identical to the order of state changes.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/voxhire/internal/config"
	"github.com/MrWong99/voxhire/internal/dialogue"
	"github.com/MrWong99/voxhire/internal/observe"
	"github.com/MrWong99/voxhire/internal/transcript"
	"github.com/MrWong99/voxhire/internal/transcript/phonetic"
	"github.com/MrWong99/voxhire/pkg/audio"
	"github.com/MrWong99/voxhire/pkg/memory"
	"github.com/MrWong99/voxhire/pkg/provider/llm"
	"github.com/MrWong99/voxhire/pkg/provider/stt"
	"github.com/MrWong99/voxhire/pkg/provider/tts"
	"github.com/MrWong99/voxhire/pkg/types"
)

var (
	// ErrSessionDisposed is returned by every operation once [Session.Dispose]
	// has run.
	ErrSessionDisposed = errors.New("interview: session disposed")

	// ErrNotReady is returned when the session could not load its interview
	// context. Such a session stays inert until it is released.
	ErrNotReady = errors.New("interview: session not ready")
)

// persistTimeout bounds a single message write.
const persistTimeout = 5 * time.Second

// PipelineProbe reports whether server-side speech recognition is usable.
// The health monitor consults it before leaving browser fallback.
type PipelineProbe interface {
	ServerSTTAvailable() bool
}

// ProbeFunc adapts a function to [PipelineProbe].
type ProbeFunc func() bool

// ServerSTTAvailable calls f.
func (f ProbeFunc) ServerSTTAvailable() bool { return f() }

// ProviderNames label provider metrics.
type ProviderNames struct {
	STT string
	LLM string
	TTS string
}

// Deps holds everything a session needs. Store is required; a nil STT means
// candidates must use browser recognition and a nil LLM means every reply is
// a fallback reply.
type Deps struct {
	Store   memory.Store
	STT     stt.Provider
	LLM     llm.Provider
	PlanLLM llm.Provider
	TTS     tts.Provider

	// TTSFormat describes the audio TTS produces. When empty it is taken from
	// the provider if it implements [tts.Describer].
	TTSFormat tts.Format

	Probe   PipelineProbe
	Sink    Sink
	Metrics *observe.Metrics
	Names   ProviderNames

	Settings      config.InterviewConfig
	Transcript    config.TranscriptConfig
	HistoryWindow int
}

// Session is the live state of one interview.
type Session struct {
	id      string
	deps    Deps
	cfg     config.InterviewConfig
	sink    Sink
	metrics *observe.Metrics
	format  tts.Format
	window  int
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	ready     chan struct{}
	done      chan struct{}

	gateLimiter rate.Sometimes
	hintLimiter rate.Sometimes

	mu             sync.Mutex
	state          State
	initErr        error
	ic             types.InterviewContext
	greeted        bool
	history        []types.ConversationMessage
	candidateTurns int
	plan           *dialogue.QuestionPlan
	vocabulary     []string
	corrector      *transcript.Corrector
	ttsMode        config.TTSMode
	decoder        *audio.ChunkDecoder

	chunks      [][]byte
	bufBytes    int
	bufMime     string
	lastChunkAt time.Time
	vadStop     timerSlot
	idle        timerSlot

	sttFailures   int
	sttEmpty      int
	fallbackUntil time.Time
	recovery      timerSlot
}

// NewSession creates a session for interview id. Call [Session.Start] to
// begin loading its context; operations called earlier start it implicitly.
func NewSession(id string, deps Deps) *Session {
	cfg := deps.Settings.WithDefaults()
	s := &Session{
		id:          id,
		deps:        deps,
		cfg:         cfg,
		sink:        deps.Sink,
		metrics:     deps.Metrics,
		format:      deps.TTSFormat,
		window:      deps.HistoryWindow,
		now:         time.Now,
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
		gateLimiter: rate.Sometimes{Interval: cfg.InputGateInterval},
		hintLimiter: rate.Sometimes{Interval: cfg.HintInterval},
		state:       StateListening,
		ttsMode:     cfg.TTSMode,
		decoder:     audio.NewChunkDecoder(),
	}
	if s.sink == nil {
		s.sink = nopSink{}
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.window <= 0 {
		s.window = 24
	}
	if s.format.MimeType == "" {
		if d, ok := deps.TTS.(tts.Describer); ok {
			s.format = d.OutputFormat()
		}
		if s.format.MimeType == "" {
			s.format = tts.Format{MimeType: audio.MimePCM, SampleRate: audio.STTFormat.SampleRate}
		}
	}
	s.ctx, s.cancel = context.WithCancel(observe.WithInterviewID(context.Background(), id))
	return s
}

// ID returns the interview id.
func (s *Session) ID() string { return s.id }

// Done is closed when the session is disposed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start loads the interview context in the background. It is idempotent.
func (s *Session) Start() {
	s.startOnce.Do(func() { go s.init() })
}

func (s *Session) init() {
	defer close(s.ready)
	log := observe.Logger(s.ctx)

	if s.deps.Store == nil {
		s.failInit(errors.New("no store configured"))
		return
	}
	ic, err := s.deps.Store.LoadContext(s.ctx, s.id)
	if err != nil {
		s.failInit(fmt.Errorf("load context: %w", err))
		return
	}
	history, err := s.deps.Store.LoadRecentMessages(s.ctx, s.id, s.window)
	if err != nil {
		s.failInit(fmt.Errorf("load history: %w", err))
		return
	}

	vocab := transcript.Vocabulary(*ic)
	var corrector *transcript.Corrector
	if !s.deps.Transcript.Disabled && len(vocab) > 0 {
		var opts []phonetic.Option
		if th := s.deps.Transcript.PhoneticThreshold; th > 0 {
			opts = append(opts, phonetic.WithPhoneticThreshold(th))
		}
		corrector = transcript.New(vocab, transcript.WithMatcher(phonetic.New(opts...)))
	}

	turns, greeted := s.countTurns(history)

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.ic = *ic
	s.history = history
	s.candidateTurns = turns
	s.greeted = greeted
	s.vocabulary = vocab
	s.corrector = corrector
	s.mu.Unlock()

	log.Info("interview session ready", "history", len(history), "turns", turns, "greeted", greeted, "vocabulary", len(vocab))
	go s.warmPlan(*ic)
}

// countTurns reports how many candidate turns the interview has had and
// whether it was greeted. The loaded window can be shorter than the
// interview, so stores that count messages are asked for the full totals.
func (s *Session) countTurns(history []types.ConversationMessage) (turns int, greeted bool) {
	turns = dialogue.CountCandidateTurns(history)
	for _, m := range history {
		if m.Role == types.RoleAssistant {
			greeted = true
			break
		}
	}
	c, ok := s.deps.Store.(memory.MessageCounter)
	if !ok {
		return turns, greeted
	}
	log := observe.Logger(s.ctx)
	if n, err := c.CountMessages(s.ctx, s.id, types.RoleUser); err != nil {
		log.Warn("count candidate turns failed, using the history window", "err", err)
	} else {
		turns = n
	}
	if !greeted {
		if n, err := c.CountMessages(s.ctx, s.id, types.RoleAssistant); err != nil {
			log.Warn("count interviewer messages failed, using the history window", "err", err)
		} else {
			greeted = n > 0
		}
	}
	return turns, greeted
}

func (s *Session) failInit(err error) {
	observe.Logger(s.ctx).Error("interview session init failed", "err", err)
	s.mu.Lock()
	s.initErr = err
	s.mu.Unlock()
}

// ensureReady waits for initialisation and reports whether the session can
// accept operations.
func (s *Session) ensureReady(ctx context.Context) error {
	s.Start()
	select {
	case <-s.ready:
	case <-s.done:
		return ErrSessionDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return ErrSessionDisposed
	}
	if s.initErr != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, s.initErr)
	}
	return nil
}

// Dispose stops every timer, abandons in-flight work and emits a final
// turn_state. It is idempotent.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.vadStop.cancel()
	s.idle.cancel()
	s.recovery.cancel()
	s.clearBufferLocked()
	s.transitionLocked(StateDisposed)
	s.history = nil
	close(s.done)
	s.mu.Unlock()

	s.cancel()
	observe.Logger(s.ctx).Info("interview session disposed")
}

// SetTTSMode switches where the interviewer's speech is rendered.
func (s *Session) SetTTSMode(ctx context.Context, mode config.TTSMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("interview: invalid tts mode %q", mode)
	}
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttsMode == mode {
		return nil
	}
	s.ttsMode = mode
	s.broadcastLocked(EventVoiceMode, s.voiceModeLocked("client_request"))
	return nil
}

// SubmitText feeds a typed or browser-recognised candidate turn into the
// pipeline. Input outside the listening state is answered with an
// input_gate event.
func (s *Session) SubmitText(ctx context.Context, text string) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	s.mu.Lock()
	if !s.canAcceptInputLocked() {
		s.inputGateLocked("text")
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	go s.processTurn(&turnInput{text: text, source: sourceText})
	return nil
}

// BeginGreeting delivers the opening line once per interview. With force it
// is repeated even when the interview already has an interviewer message,
// which the client uses after a reconnect.
func (s *Session) BeginGreeting(ctx context.Context, force bool) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if (s.greeted && !force) || s.state != StateListening {
		s.mu.Unlock()
		return nil
	}
	s.clearBufferLocked()
	s.vadStop.cancel()
	s.idle.cancel()
	s.transitionLocked(StateThinking)
	if s.deps.STT == nil {
		s.broadcastLocked(EventVoiceMode, s.voiceModeLocked("stt_unconfigured"))
	}
	text := dialogue.Greeting(s.ic)
	s.mu.Unlock()

	go func() {
		defer s.finishTurn()
		s.deliver(s.ctx, text, deliverOpts{greeting: true})
	}()
	return nil
}

// Snapshot is a point-in-time view of a session for the admin API.
type Snapshot struct {
	InterviewID    string     `json:"interview_id"`
	State          string     `json:"state"`
	Ready          bool       `json:"ready"`
	Error          string     `json:"error,omitempty"`
	Greeted        bool       `json:"greeted"`
	CandidateTurns int        `json:"candidate_turns"`
	STT            string     `json:"stt"`
	TTS            string     `json:"tts"`
	FallbackUntil  *time.Time `json:"fallback_until,omitempty"`
	PlanSource     string     `json:"plan_source,omitempty"`
	BufferedChunks int        `json:"buffered_chunks"`
}

// Snapshot returns the current state without waiting for initialisation.
func (s *Session) Snapshot() Snapshot {
	ready := false
	select {
	case <-s.ready:
		ready = true
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	vm := s.voiceModeLocked("")
	snap := Snapshot{
		InterviewID:    s.id,
		State:          s.state.String(),
		Ready:          ready && s.initErr == nil,
		Greeted:        s.greeted,
		CandidateTurns: s.candidateTurns,
		STT:            vm.STT,
		TTS:            vm.TTS,
		FallbackUntil:  vm.Until,
		BufferedChunks: len(s.chunks),
	}
	if s.initErr != nil {
		snap.Error = s.initErr.Error()
	}
	if s.plan != nil {
		snap.PlanSource = string(s.plan.Source)
	}
	return snap
}

// State returns the current turn state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transitionLocked moves to the given state and broadcasts turn_state.
// Illegal transitions are logged and ignored.
func (s *Session) transitionLocked(to State) bool {
	from := s.state
	if !canTransition(from, to) {
		observe.Logger(s.ctx).Warn("illegal turn transition ignored", "from", from.String(), "to", to.String())
		return false
	}
	s.state = to
	if to != StateListening {
		s.clearBufferLocked()
		s.vadStop.cancel()
		s.idle.cancel()
	}
	s.broadcastLocked(EventTurnState, TurnStatePayload{State: to.String(), Previous: from.String()})
	return true
}

// finishTurn returns a live session to listening along the legal cycle.
func (s *Session) finishTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateThinking {
		s.transitionLocked(StateSpeaking)
	}
	if s.state == StateSpeaking {
		s.transitionLocked(StateListening)
	}
}

func (s *Session) canAcceptInputLocked() bool {
	return s.state == StateListening && s.greeted && s.initErr == nil
}

func (s *Session) broadcastLocked(t EventType, payload any) {
	s.sink.Broadcast(s.id, Event{Type: t, Payload: payload, At: s.now()})
}

func (s *Session) sendCandidateLocked(t EventType, payload any) {
	s.sink.SendToParticipant(s.id, ParticipantCandidate, Event{Type: t, Payload: payload, At: s.now()})
}

func (s *Session) inputGateLocked(reason string) {
	state := s.state.String()
	s.gateLimiter.Do(func() {
		s.sendCandidateLocked(EventInputGate, InputGatePayload{State: state, Reason: reason})
	})
}

// voiceModeLocked describes the current speech routing.
func (s *Session) voiceModeLocked(reason string) VoiceModePayload {
	vm := VoiceModePayload{STT: PipelineServer, TTS: PipelineBrowser, Reason: reason}
	if s.deps.STT == nil || !s.fallbackUntil.IsZero() {
		vm.STT = PipelineBrowser
	}
	if !s.fallbackUntil.IsZero() {
		until := s.fallbackUntil
		vm.Until = &until
	}
	if s.ttsMode == config.TTSServer && s.deps.TTS != nil {
		vm.TTS = PipelineServer
	}
	return vm
}

func (s *Session) voiceLocked() types.VoiceProfile {
	if s.ic.Voice.ID != "" {
		return s.ic.Voice
	}
	return types.VoiceProfile{ID: s.cfg.Voice.VoiceID, Provider: s.cfg.Voice.Provider}
}

func (s *Session) languageLocked() string {
	if l := s.ic.Job.Language; l != "" {
		return l
	}
	return s.cfg.Language
}

// appendHistoryLocked keeps the in-memory window bounded.
func (s *Session) appendHistoryLocked(m types.ConversationMessage) {
	s.history = append(s.history, m)
	if len(s.history) > 2*s.window {
		s.history = append([]types.ConversationMessage(nil), s.history[len(s.history)-s.window:]...)
	}
}

// persist stores m and returns it with its assigned id. Failures are logged
// and the unsaved message is returned.
func (s *Session) persist(ctx context.Context, m types.ConversationMessage) types.ConversationMessage {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	stored, err := s.deps.Store.AppendMessage(ctx, s.id, m)
	if err != nil {
		observe.Logger(ctx).Warn("persist message failed", "role", string(m.Role), "err", err)
		return m
	}
	return stored
}

type nopSink struct{}

func (nopSink) Broadcast(string, Event)                      {}
func (nopSink) SendToParticipant(string, Participant, Event) {}
