package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/voxhire/pkg/provider/llm"
	"github.com/MrWong99/voxhire/pkg/types"
)

// PlanSource records where a [QuestionPlan] came from.
type PlanSource string

const (
	// PlanAI is a plan generated by the language model.
	PlanAI PlanSource = "ai"

	// PlanFallback is the canned plan built from the job's skills.
	PlanFallback PlanSource = "fallback"
)

// Upper bounds applied to parsed plans.
const (
	maxFocusAreas    = 6
	maxCoreQuestions = 8
	maxFollowups     = 8
)

// ErrInvalidPlan is returned by [ParsePlan] when the model output has no
// usable JSON object or no core questions.
var ErrInvalidPlan = errors.New("dialogue: invalid question plan")

// QuestionPlan is a structured outline for one interview.
type QuestionPlan struct {
	Source        PlanSource `json:"source"`
	RoleSummary   string     `json:"role_summary"`
	FocusAreas    []string   `json:"focus_areas"`
	CoreQuestions []string   `json:"core_questions"`
	Followups     []string   `json:"followups"`
}

const planSystemPrompt = `You prepare structured plans for spoken job interviews.
Reply with a single JSON object and nothing else, using exactly these keys:
{"role_summary": string, "focus_areas": [string], "core_questions": [string], "followups": [string]}
Write at most 6 focus areas, 8 core questions and 8 follow-ups.
Questions must be short enough to be read aloud and must not reference a screen or document.`

// PlanRequest builds the completion request that asks the model for a plan.
func PlanRequest(ic types.InterviewContext, temperature float64) llm.CompletionRequest {
	var sb strings.Builder
	sb.WriteString("Prepare an interview plan.\n\n")
	writeJob(&sb, ic.Job)
	writeCandidate(&sb, ic.Candidate)
	return llm.CompletionRequest{
		SystemPrompt: planSystemPrompt,
		Messages:     []types.Message{{Role: types.RoleUser, Content: sb.String()}},
		Temperature:  temperature,
		MaxTokens:    800,
		JSON:         true,
	}
}

// GeneratePlan asks p for a plan and parses the reply. Callers bound the call
// with ctx and fall back to [FallbackPlan] on any error.
func GeneratePlan(ctx context.Context, p llm.Provider, ic types.InterviewContext, temperature float64) (*QuestionPlan, error) {
	resp, err := p.Complete(ctx, PlanRequest(ic, temperature))
	if err != nil {
		return nil, fmt.Errorf("dialogue: generate plan: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("dialogue: generate plan: %w: empty response", ErrInvalidPlan)
	}
	plan, err := ParsePlan(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("dialogue: generate plan: %w", err)
	}
	return plan, nil
}

// ParsePlan extracts a plan from model output. Markdown fences and prose
// around the JSON object are tolerated. Entries are trimmed, blanks dropped
// and each list capped.
func ParsePlan(raw string) (*QuestionPlan, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object", ErrInvalidPlan)
	}
	var plan QuestionPlan
	if err := json.Unmarshal([]byte(raw[start:end+1]), &plan); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	plan.Source = PlanAI
	plan.RoleSummary = strings.TrimSpace(plan.RoleSummary)
	plan.FocusAreas = cleanList(plan.FocusAreas, maxFocusAreas)
	plan.CoreQuestions = cleanList(plan.CoreQuestions, maxCoreQuestions)
	plan.Followups = cleanList(plan.Followups, maxFollowups)
	if len(plan.CoreQuestions) == 0 {
		return nil, fmt.Errorf("%w: no core questions", ErrInvalidPlan)
	}
	return &plan, nil
}

// FallbackPlan builds a canned plan from the job's required skills.
func FallbackPlan(ic types.InterviewContext) *QuestionPlan {
	title := ic.Job.Title
	if title == "" {
		title = "this role"
	}
	skills := cleanList(ic.Job.Skills, maxFocusAreas)

	plan := &QuestionPlan{
		Source:      PlanFallback,
		RoleSummary: fmt.Sprintf("Interview for %s.", title),
		FocusAreas:  skills,
		CoreQuestions: []string{
			fmt.Sprintf("What drew you to %s, and what would you bring to it?", title),
		},
		Followups: []string{
			"Can you give me a concrete example of that?",
			"What would you do differently if you did it again?",
			"How did you measure whether it worked?",
		},
	}
	for _, s := range skills {
		plan.CoreQuestions = append(plan.CoreQuestions,
			fmt.Sprintf("Tell me about a project where you relied on %s. What was your part in it?", s))
	}
	plan.CoreQuestions = append(plan.CoreQuestions,
		"Describe a difficult technical problem you solved recently and how you approached it.")
	if len(plan.CoreQuestions) > maxCoreQuestions {
		plan.CoreQuestions = plan.CoreQuestions[:maxCoreQuestions]
	}
	return plan
}

func cleanList(in []string, limit int) []string {
	out := make([]string, 0, min(len(in), limit))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
