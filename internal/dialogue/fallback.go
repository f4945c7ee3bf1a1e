package dialogue

import "strings"

// ClosingLine ends the interview when the turn budget is spent.
const ClosingLine = "Thank you for your time today. That concludes our interview, and the team will be in touch about next steps."

var cannedPrompts = []string{
	"Thanks, please continue.",
	"Could you tell me a bit more about that?",
	"Can you give me a concrete example from your recent work?",
	"What was the hardest part of that, and how did you handle it?",
	"What would you do differently if you faced that situation again?",
}

// FallbackReply is the deterministic reply used when generation fails or
// times out. It walks the plan's core questions by candidate-turn count and
// falls back to canned prompts when there is no plan.
func FallbackReply(plan *QuestionPlan, candidateTurns int, phase Phase) string {
	if phase == PhaseClose {
		return ClosingLine
	}
	n := max(candidateTurns, 0)
	if plan != nil && len(plan.CoreQuestions) > 0 {
		q := strings.TrimSpace(plan.CoreQuestions[n%len(plan.CoreQuestions)])
		return "Thanks for sharing that. " + q
	}
	return cannedPrompts[n%len(cannedPrompts)]
}
