package dialogue

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	fenceRe      = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
	lineMarkerRe = regexp.MustCompile(`(?m)^\s*(?:#{1,6}\s+|[-*•]\s+|\d{1,2}[.)]\s+|>\s*)`)
	speakerRe    = regexp.MustCompile(`(?i)^\s*(?:interviewer|assistant|ai|recruiter)\s*:\s*`)
	bracketRe    = regexp.MustCompile(`\[[^\]\n]*\]`)
	stageParenRe = regexp.MustCompile(`(?i)\(\s*(?:pause[sd]?|laughs?|smiles?|nods?|sighs?|chuckles?|clears throat)[^)\n]*\)`)
	strongRe     = regexp.MustCompile(`\*\*|__`)
	stageStarRe  = regexp.MustCompile(`\*[^*\n]{1,40}\*`)
	spaceRe      = regexp.MustCompile(`\s+`)
	spacePunctRe = regexp.MustCompile(`\s+([,.!?;:])`)
)

// PostProcess turns raw model output into a single spoken reply. It strips
// markdown and stage directions, collapses whitespace, caps the length at
// maxChars (zero disables the cap) and, in [PhaseClose], makes sure the reply
// closes the interview instead of asking another question.
//
// The result may be empty; callers substitute a fallback reply.
func PostProcess(raw string, phase Phase, maxChars int) string {
	s := strings.TrimSpace(raw)
	s = fenceRe.ReplaceAllString(s, "")
	s = lineMarkerRe.ReplaceAllString(s, "")
	s = speakerRe.ReplaceAllString(s, "")
	s = bracketRe.ReplaceAllString(s, "")
	s = stageParenRe.ReplaceAllString(s, "")
	s = strongRe.ReplaceAllString(s, "")
	s = stageStarRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "`", "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = spacePunctRe.ReplaceAllString(s, "$1")
	s = strings.Trim(s, ` "'“”`)

	if phase == PhaseClose {
		s = dropTrailingQuestion(s)
		if !strings.Contains(strings.ToLower(s), "thank") {
			s = strings.TrimSpace(s + " " + ClosingLine)
		}
	}
	return capLength(s, maxChars)
}

// dropTrailingQuestion removes a final question sentence when at least one
// other sentence precedes it.
func dropTrailingQuestion(s string) string {
	if !strings.HasSuffix(s, "?") {
		return s
	}
	cut := strings.LastIndexAny(strings.TrimSuffix(s, "?"), ".!?")
	if cut < 0 {
		return s
	}
	return strings.TrimSpace(s[:cut+1])
}

// capLength shortens s to at most maxChars runes, preferring a sentence
// boundary in the second half, then a word boundary.
func capLength(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	r := []rune(s)[:maxChars]
	head := string(r)
	if i := strings.LastIndexAny(head, ".!?"); i >= len(head)/2 {
		return head[:i+1]
	}
	if i := strings.LastIndexByte(head, ' '); i > 0 {
		head = head[:i]
	}
	return strings.TrimRight(head, ",;: ") + "."
}
