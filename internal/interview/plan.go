package interview

import (
	"context"
	"errors"

	"github.com/MrWong99/voxhire/internal/dialogue"
	"github.com/MrWong99/voxhire/internal/observe"
	"github.com/MrWong99/voxhire/pkg/types"
)

// warmPlan prepares the question plan in the background. Turns that arrive
// first run without one.
func (s *Session) warmPlan(ic types.InterviewContext) {
	ctx, span := observe.StartSpan(s.ctx, "interview.plan")
	defer span.End()
	log := observe.Logger(ctx)

	p := s.deps.PlanLLM
	if p == nil {
		p = s.deps.LLM
	}
	var plan *dialogue.QuestionPlan
	if p != nil {
		start := s.now()
		res, err := await(ctx, s.cfg.PlanTimeout, s.done, func(ctx context.Context) (*dialogue.QuestionPlan, error) {
			return dialogue.GeneratePlan(ctx, p, ic, s.cfg.Temperature)
		})
		if errors.Is(err, ErrSessionDisposed) {
			return
		}
		s.recordCall(ctx, span, s.deps.Names.LLM, "llm", start, err)
		if err != nil {
			log.Info("question plan unavailable, using skills-based plan", "err", err)
		} else {
			plan = res
		}
	}
	if plan == nil {
		plan = dialogue.FallbackPlan(ic)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return
	}
	s.plan = plan
	log.Debug("question plan ready", "source", string(plan.Source), "core_questions", len(plan.CoreQuestions))
}
