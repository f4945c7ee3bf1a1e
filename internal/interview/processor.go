package interview

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxhire/internal/dialogue"
	"github.com/MrWong99/voxhire/internal/observe"
	"github.com/MrWong99/voxhire/pkg/audio"
	"github.com/MrWong99/voxhire/pkg/provider/llm"
	"github.com/MrWong99/voxhire/pkg/provider/stt"
	"github.com/MrWong99/voxhire/pkg/types"
)

type turnSource string

const (
	sourceAudio turnSource = "audio"
	sourceText  turnSource = "text"
)

type turnInput struct {
	text   string
	audio  []byte
	mime   string
	source turnSource
}

// processTurn takes one candidate turn from raw input to a delivered reply.
func (s *Session) processTurn(in *turnInput) {
	ctx, span := observe.StartSpan(s.ctx, "interview.turn",
		trace.WithAttributes(attribute.String("source", string(in.source))))
	defer span.End()
	start := s.now()

	text, original := in.text, ""
	if in.source == sourceAudio {
		var ok bool
		text, original, ok = s.recognise(ctx, in)
		if !ok {
			return
		}
	}

	s.mu.Lock()
	switch {
	case s.state == StateDisposed:
		s.mu.Unlock()
		return
	case !s.canAcceptInputLocked():
		s.inputGateLocked("turn_in_flight")
		s.metrics.RecordTurnRejection(ctx, "busy")
		s.mu.Unlock()
		return
	}
	s.transitionLocked(StateThinking)
	defer s.finishTurn()

	msg := types.ConversationMessage{Role: types.RoleUser, Content: text, Timestamp: s.now()}
	s.appendHistoryLocked(msg)
	s.candidateTurns++
	turns := s.candidateTurns
	ic, plan := s.ic, s.plan
	lang := s.languageLocked()
	history := append([]types.ConversationMessage(nil), s.history...)
	s.mu.Unlock()

	s.metrics.RecordTurn(ctx, string(in.source))
	stored := s.persist(ctx, msg)

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.broadcastLocked(EventTranscript, TranscriptPayload{
		MessageID: stored.ID,
		Text:      text,
		Original:  original,
		Source:    string(in.source),
	})
	s.mu.Unlock()

	phase := dialogue.PhaseFor(turns, s.cfg.MinCandidateTurns, s.cfg.MaxCandidateTurns)
	span.SetAttributes(attribute.Int("candidate_turns", turns), attribute.String("phase", phase.String()))

	reply, reason := s.generate(ctx, ic, plan, history, turns, phase, lang)
	if reason == fallbackDisposed {
		return
	}
	if reason != "" {
		observe.Logger(ctx).Info("using fallback reply", "reason", reason, "phase", phase.String())
		s.metrics.RecordFallbackReply(ctx, reason)
		reply = dialogue.FallbackReply(plan, turns, phase)
	}
	s.deliver(ctx, reply, deliverOpts{fallback: reason != ""})
	s.metrics.TurnDuration.Record(ctx, s.now().Sub(start).Seconds())
}

// recognise transcribes an audio turn. It reports ok=false when the turn
// produced nothing to answer; the health monitor has then been updated.
func (s *Session) recognise(ctx context.Context, in *turnInput) (text, original string, ok bool) {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return "", "", false
	}
	if !s.fallbackUntil.IsZero() || s.deps.STT == nil {
		s.metrics.RecordTurnRejection(ctx, "fallback")
		s.mu.Unlock()
		return "", "", false
	}
	corrector := s.corrector
	opts := stt.Options{
		Language: s.languageLocked(),
		Prompt:   strings.Join(s.vocabulary, ", "),
		MimeType: in.mime,
	}
	s.mu.Unlock()
	if stt.NormalizeMime(in.mime) == stt.MimePCM {
		opts.SampleRate = audio.STTFormat.SampleRate
	}

	ctx, span := observe.StartSpan(ctx, "interview.stt")
	start := s.now()
	raw, err := await(ctx, s.cfg.STTTimeout, s.done, func(ctx context.Context) (string, error) {
		return s.deps.STT.Transcribe(ctx, in.audio, opts)
	})
	s.recordCall(ctx, span, s.deps.Names.STT, "stt", start, err)
	span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed || errors.Is(err, ErrSessionDisposed) {
		return "", "", false
	}
	if err != nil {
		reason := "stt_error"
		if errors.Is(err, errAwaitTimeout) {
			reason = "stt_timeout"
		}
		observe.Logger(ctx).Warn("speech recognition failed", "reason", reason, "err", err)
		s.metrics.RecordTurnRejection(ctx, reason)
		s.registerFailureLocked(reason)
		return "", "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		s.metrics.RecordTurnRejection(ctx, string(reasonEmptyTranscript))
		s.registerEmptyTurnLocked(reasonEmptyTranscript)
		return "", "", false
	}
	s.resetHealthLocked()

	res := corrector.Correct(raw)
	if res.Text != raw {
		original = raw
		observe.Logger(ctx).Debug("transcript corrected", "corrections", len(res.Corrections))
	}
	return res.Text, original, true
}

const fallbackDisposed = "disposed"

// generate asks the LLM for the next interviewer line. A non-empty reason
// means the caller must use a fallback reply instead.
func (s *Session) generate(ctx context.Context, ic types.InterviewContext, plan *dialogue.QuestionPlan,
	history []types.ConversationMessage, turns int, phase dialogue.Phase, lang string,
) (reply, reason string) {
	if s.deps.LLM == nil {
		return "", "unconfigured"
	}
	directive := dialogue.Directive(phase, turns, s.cfg.MinCandidateTurns, s.cfg.MaxCandidateTurns)
	req := llm.CompletionRequest{
		SystemPrompt: dialogue.SystemPrompt(ic, plan, lang),
		Messages: []types.Message{{
			Role:    types.RoleUser,
			Content: dialogue.UserPrompt(directive, history, s.window),
		}},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}

	ctx, span := observe.StartSpan(ctx, "interview.llm")
	defer span.End()
	start := s.now()
	resp, err := await(ctx, s.cfg.GenerationTimeout, s.done, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return s.deps.LLM.Complete(ctx, req)
	})
	s.recordCall(ctx, span, s.deps.Names.LLM, "llm", start, err)

	switch {
	case errors.Is(err, ErrSessionDisposed):
		return "", fallbackDisposed
	case errors.Is(err, errAwaitTimeout):
		observe.Logger(ctx).Warn("reply generation timed out", "timeout", s.cfg.GenerationTimeout)
		return "", "timeout"
	case err != nil:
		observe.Logger(ctx).Warn("reply generation failed", "err", err)
		return "", "error"
	case resp == nil:
		return "", "empty"
	}
	reply = dialogue.PostProcess(resp.Content, phase, s.cfg.MaxReplyChars)
	if reply == "" {
		return "", "empty"
	}
	return reply, ""
}

// recordCall records metrics and span status for a provider call.
func (s *Session) recordCall(ctx context.Context, span trace.Span, name, kind string, start time.Time, err error) {
	status := observe.StatusOK
	switch {
	case errors.Is(err, errAwaitTimeout):
		status = observe.StatusTimeout
	case err != nil:
		status = observe.StatusError
	}
	if err != nil && !errors.Is(err, ErrSessionDisposed) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if name == "" {
		name = kind
	}
	s.metrics.RecordProviderRequest(ctx, name, kind, status, s.now().Sub(start))
}
