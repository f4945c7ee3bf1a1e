package dialogue_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/voxhire/internal/dialogue"
	"github.com/MrWong99/voxhire/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxhire/pkg/provider/llm/mock"
	"github.com/MrWong99/voxhire/pkg/types"
)

func sampleContext() types.InterviewContext {
	return types.InterviewContext{
		InterviewID: "iv-1",
		Job: types.Job{
			Title:       "Backend Engineer",
			Company:     "Acme",
			Description: "Build payment APIs.",
			Skills:      []string{"Go", "PostgreSQL"},
		},
		Candidate: types.Candidate{Name: "Sam", Skills: []string{"Kubernetes"}},
	}
}

func TestPhaseFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		turns int
		want  dialogue.Phase
	}{
		{0, dialogue.PhaseProbe},
		{5, dialogue.PhaseProbe},
		{6, dialogue.PhaseTransition},
		{9, dialogue.PhaseTransition},
		{10, dialogue.PhaseClose},
		{14, dialogue.PhaseClose},
	}
	for _, tt := range tests {
		if got := dialogue.PhaseFor(tt.turns, 6, 10); got != tt.want {
			t.Errorf("PhaseFor(%d, 6, 10) = %s, want %s", tt.turns, got, tt.want)
		}
	}
}

func TestCountCandidateTurns(t *testing.T) {
	t.Parallel()

	h := []types.ConversationMessage{
		{Role: types.RoleAssistant, Content: "Hi"},
		{Role: types.RoleUser, Content: "Hello"},
		{Role: types.RoleSystem, Content: "note"},
		{Role: types.RoleUser, Content: "More"},
	}
	if got := dialogue.CountCandidateTurns(h); got != 2 {
		t.Errorf("CountCandidateTurns = %d, want 2", got)
	}
}

func TestDirective(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phase dialogue.Phase
		turns int
		want  string
	}{
		{dialogue.PhaseProbe, 2, "Keep probing"},
		{dialogue.PhaseTransition, 7, "at most 3 more"},
		{dialogue.PhaseClose, 10, "Do not ask another question"},
	}
	for _, tt := range tests {
		got := dialogue.Directive(tt.phase, tt.turns, 6, 10)
		if !strings.Contains(got, tt.want) {
			t.Errorf("Directive(%s) = %q, want it to contain %q", tt.phase, got, tt.want)
		}
	}
}

func TestSystemPrompt(t *testing.T) {
	t.Parallel()

	ic := sampleContext()
	without := dialogue.SystemPrompt(ic, nil, "de")
	for _, want := range []string{"Backend Engineer", "Acme", "Go, PostgreSQL", "Sam", "Kubernetes", `"de"`} {
		if !strings.Contains(without, want) {
			t.Errorf("SystemPrompt missing %q:\n%s", want, without)
		}
	}
	if strings.Contains(without, "Interview Plan") {
		t.Error("SystemPrompt rendered a plan section for a nil plan")
	}

	plan := &dialogue.QuestionPlan{CoreQuestions: []string{"Why Go?"}, FocusAreas: []string{"APIs"}}
	with := dialogue.SystemPrompt(ic, plan, "")
	if !strings.Contains(with, "- Why Go?") || !strings.Contains(with, "- APIs") {
		t.Errorf("SystemPrompt missing plan:\n%s", with)
	}
}

func TestUserPrompt_Window(t *testing.T) {
	t.Parallel()

	h := []types.ConversationMessage{
		{Role: types.RoleAssistant, Content: "first"},
		{Role: types.RoleUser, Content: "second"},
		{Role: types.RoleAssistant, Content: "third"},
	}
	got := dialogue.UserPrompt("DIRECTIVE", h, 2)
	if !strings.HasPrefix(got, "DIRECTIVE") {
		t.Errorf("UserPrompt does not start with directive: %q", got)
	}
	if strings.Contains(got, "first") {
		t.Error("UserPrompt ignored the history window")
	}
	if !strings.Contains(got, "Candidate: second") || !strings.Contains(got, "Interviewer: third") {
		t.Errorf("UserPrompt history = %q", got)
	}
}

func TestGreeting(t *testing.T) {
	t.Parallel()

	got := dialogue.Greeting(sampleContext())
	if !strings.HasPrefix(got, "Hello Sam,") || !strings.Contains(got, "Backend Engineer position at Acme") {
		t.Errorf("Greeting = %q", got)
	}
	if bare := dialogue.Greeting(types.InterviewContext{}); !strings.HasPrefix(bare, "Hello, thank you") {
		t.Errorf("Greeting without context = %q", bare)
	}
}

func TestPostProcess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   string
		phase dialogue.Phase
		max   int
		want  string
	}{
		{
			name: "markdown and whitespace",
			raw:  "  **Great** answer!\n\n- What did you   learn?  ",
			want: "Great answer! What did you learn?",
		},
		{
			name: "stage directions and speaker label",
			raw:  "Interviewer: *smiles* [pause] That sounds interesting (nods). Why Go?",
			want: "That sounds interesting. Why Go?",
		},
		{
			name: "code fence",
			raw:  "```\nTell me about your tests.\n```",
			want: "Tell me about your tests.",
		},
		{
			name: "cap at sentence",
			raw:  "First sentence here. Second sentence is much longer than the limit allows.",
			max:  36,
			want: "First sentence here.",
		},
		{
			name: "cap at word",
			raw:  "one two three four five six seven",
			max:  12,
			want: "one two.",
		},
		{
			name:  "close phase appends closing",
			raw:   "Great, that covers everything.",
			phase: dialogue.PhaseClose,
			want:  "Great, that covers everything. " + dialogue.ClosingLine,
		},
		{
			name:  "close phase drops trailing question",
			raw:   "Thank you, that was helpful. What else would you add?",
			phase: dialogue.PhaseClose,
			want:  "Thank you, that was helpful.",
		},
		{
			name: "empty",
			raw:  "   ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := dialogue.PostProcess(tt.raw, tt.phase, tt.max); got != tt.want {
				t.Errorf("PostProcess(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFallbackReply(t *testing.T) {
	t.Parallel()

	plan := &dialogue.QuestionPlan{CoreQuestions: []string{"Q0?", "Q1?"}}
	if got := dialogue.FallbackReply(plan, 3, dialogue.PhaseProbe); got != "Thanks for sharing that. Q1?" {
		t.Errorf("with plan = %q", got)
	}
	if got := dialogue.FallbackReply(nil, 0, dialogue.PhaseProbe); got != "Thanks, please continue." {
		t.Errorf("without plan = %q", got)
	}
	if got := dialogue.FallbackReply(plan, 10, dialogue.PhaseClose); got != dialogue.ClosingLine {
		t.Errorf("close = %q", got)
	}
	// Deterministic for the same input.
	if a, b := dialogue.FallbackReply(nil, 7, dialogue.PhaseTransition), dialogue.FallbackReply(nil, 7, dialogue.PhaseTransition); a != b {
		t.Errorf("not deterministic: %q vs %q", a, b)
	}
}

func TestParsePlan(t *testing.T) {
	t.Parallel()

	raw := "Here you go:\n```json\n" +
		`{"role_summary": " Payments backend ", "focus_areas": ["APIs", " "], "core_questions": ["Why Go?", "How do you test?"], "followups": []}` +
		"\n```"
	plan, err := dialogue.ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if plan.Source != dialogue.PlanAI {
		t.Errorf("Source = %q", plan.Source)
	}
	if plan.RoleSummary != "Payments backend" {
		t.Errorf("RoleSummary = %q", plan.RoleSummary)
	}
	if len(plan.FocusAreas) != 1 || len(plan.CoreQuestions) != 2 {
		t.Errorf("plan = %+v", plan)
	}

	for _, bad := range []string{"no json here", `{"core_questions": []}`, `{"core_questions": [`} {
		if _, err := dialogue.ParsePlan(bad); !errors.Is(err, dialogue.ErrInvalidPlan) {
			t.Errorf("ParsePlan(%q) err = %v, want ErrInvalidPlan", bad, err)
		}
	}
}

func TestFallbackPlan(t *testing.T) {
	t.Parallel()

	plan := dialogue.FallbackPlan(sampleContext())
	if plan.Source != dialogue.PlanFallback {
		t.Errorf("Source = %q", plan.Source)
	}
	if len(plan.CoreQuestions) != 4 {
		t.Fatalf("CoreQuestions = %v", plan.CoreQuestions)
	}
	if !strings.Contains(plan.CoreQuestions[1], "Go") || !strings.Contains(plan.CoreQuestions[2], "PostgreSQL") {
		t.Errorf("skill questions = %v", plan.CoreQuestions)
	}
}

func TestGeneratePlan(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"role_summary": "x", "core_questions": ["Why Go?"]}`,
	}}
	plan, err := dialogue.GeneratePlan(context.Background(), p, sampleContext(), 0.4)
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if plan.CoreQuestions[0] != "Why Go?" {
		t.Errorf("plan = %+v", plan)
	}
	calls := p.Calls()
	if len(calls) != 1 || calls[0].Req.Temperature != 0.4 || calls[0].Req.SystemPrompt == "" || !calls[0].Req.JSON {
		t.Errorf("calls = %+v", calls)
	}

	failing := &llmmock.Provider{CompleteErr: errors.New("boom")}
	if _, err := dialogue.GeneratePlan(context.Background(), failing, sampleContext(), 0.4); err == nil {
		t.Error("expected error from failing provider")
	}

	silent := &llmmock.Provider{}
	if _, err := dialogue.GeneratePlan(context.Background(), silent, sampleContext(), 0.4); !errors.Is(err, dialogue.ErrInvalidPlan) {
		t.Errorf("nil response: err = %v, want ErrInvalidPlan", err)
	}
}
