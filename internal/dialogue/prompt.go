// Package dialogue builds interviewer prompts and turns raw model output into
// something fit to be spoken.
//
// Nothing here performs I/O except [GeneratePlan]; every other function is
// pure and safe for concurrent use.
package dialogue

import (
	"fmt"
	"strings"

	"github.com/MrWong99/voxhire/pkg/types"
)

// Phase is where an interview stands relative to its turn bounds.
type Phase int

const (
	// PhaseProbe keeps asking and following up.
	PhaseProbe Phase = iota

	// PhaseTransition moves toward the final questions.
	PhaseTransition

	// PhaseClose thanks the candidate and ends the interview.
	PhaseClose
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case PhaseProbe:
		return "probe"
	case PhaseTransition:
		return "transition"
	case PhaseClose:
		return "close"
	default:
		return "unknown"
	}
}

// PhaseFor maps the number of candidate turns so far onto a [Phase].
func PhaseFor(candidateTurns, minTurns, maxTurns int) Phase {
	switch {
	case maxTurns > 0 && candidateTurns >= maxTurns:
		return PhaseClose
	case candidateTurns >= minTurns:
		return PhaseTransition
	default:
		return PhaseProbe
	}
}

// CountCandidateTurns counts user messages in history.
func CountCandidateTurns(history []types.ConversationMessage) int {
	n := 0
	for _, m := range history {
		if m.Role == types.RoleUser {
			n++
		}
	}
	return n
}

// Directive tells the model how to steer the next turn.
func Directive(phase Phase, candidateTurns, minTurns, maxTurns int) string {
	switch phase {
	case PhaseClose:
		return fmt.Sprintf("The candidate has answered %d questions, which is the maximum. "+
			"Do not ask another question. Thank the candidate warmly, tell them the interview is complete "+
			"and that the team will follow up about next steps.", candidateTurns)
	case PhaseTransition:
		left := maxTurns - candidateTurns
		return fmt.Sprintf("The candidate has answered %d questions. Start moving toward the end of the interview: "+
			"ask at most %d more question(s), prefer core questions not yet covered, "+
			"and invite the candidate to ask their own questions before closing.", candidateTurns, max(left, 1))
	default:
		return fmt.Sprintf("The candidate has answered %d of at least %d questions. "+
			"Keep probing: react briefly to the last answer, then ask one focused follow-up or the next core question.",
			candidateTurns, minTurns)
	}
}

// SystemPrompt describes the interviewer's role, the job, the candidate and,
// when ready, the question plan. A nil plan omits that section.
func SystemPrompt(ic types.InterviewContext, plan *QuestionPlan, language string) string {
	var sb strings.Builder
	sb.WriteString("You are a friendly, professional interviewer conducting a live spoken job interview.\n")
	sb.WriteString("Your words are read aloud. Reply in plain sentences without lists, markdown, emojis or stage directions. ")
	sb.WriteString("Ask exactly one question per turn and keep replies under four sentences.\n")
	if language != "" {
		fmt.Fprintf(&sb, "Conduct the interview in the language with code %q.\n", language)
	}
	sb.WriteString("\n")
	writeJob(&sb, ic.Job)
	writeCandidate(&sb, ic.Candidate)

	if plan != nil {
		sb.WriteString("## Interview Plan\n")
		if plan.RoleSummary != "" {
			fmt.Fprintf(&sb, "Summary: %s\n", plan.RoleSummary)
		}
		writeList(&sb, "Focus areas", plan.FocusAreas)
		writeList(&sb, "Core questions", plan.CoreQuestions)
		writeList(&sb, "Follow-ups", plan.Followups)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// UserPrompt combines the turn-flow directive with the most recent history.
func UserPrompt(directive string, history []types.ConversationMessage, window int) string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	var sb strings.Builder
	sb.WriteString(directive)
	if len(history) > 0 {
		sb.WriteString("\n\n## Conversation so far\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", speakerLabel(m.Role), strings.TrimSpace(m.Content))
		}
	}
	sb.WriteString("\nWrite the interviewer's next turn.")
	return sb.String()
}

// Greeting is the deterministic opening turn.
func Greeting(ic types.InterviewContext) string {
	var sb strings.Builder
	sb.WriteString("Hello")
	if name := strings.TrimSpace(ic.Candidate.Name); name != "" {
		sb.WriteString(" " + name)
	}
	sb.WriteString(", thank you for joining. I will be your interviewer today")
	if title := strings.TrimSpace(ic.Job.Title); title != "" {
		sb.WriteString(" for the " + title + " position")
		if company := strings.TrimSpace(ic.Job.Company); company != "" {
			sb.WriteString(" at " + company)
		}
	}
	sb.WriteString(". To start, could you briefly introduce yourself and your recent work?")
	return sb.String()
}

func speakerLabel(r types.Role) string {
	switch r {
	case types.RoleUser:
		return "Candidate"
	case types.RoleAssistant:
		return "Interviewer"
	default:
		return "Note"
	}
}

func writeJob(sb *strings.Builder, j types.Job) {
	sb.WriteString("## Position\n")
	if j.Title != "" {
		fmt.Fprintf(sb, "Title: %s\n", j.Title)
	}
	if j.Company != "" {
		fmt.Fprintf(sb, "Company: %s\n", j.Company)
	}
	if d := strings.TrimSpace(j.Description); d != "" {
		fmt.Fprintf(sb, "Description: %s\n", d)
	}
	if len(j.Skills) > 0 {
		fmt.Fprintf(sb, "Required skills: %s\n", strings.Join(j.Skills, ", "))
	}
	sb.WriteString("\n")
}

func writeCandidate(sb *strings.Builder, c types.Candidate) {
	if c.Name == "" && c.Summary == "" && len(c.Skills) == 0 {
		return
	}
	sb.WriteString("## Candidate\n")
	if c.Name != "" {
		fmt.Fprintf(sb, "Name: %s\n", c.Name)
	}
	if s := strings.TrimSpace(c.Summary); s != "" {
		fmt.Fprintf(sb, "Summary: %s\n", s)
	}
	if len(c.Skills) > 0 {
		fmt.Fprintf(sb, "Listed skills: %s\n", strings.Join(c.Skills, ", "))
	}
	sb.WriteString("\n")
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}
