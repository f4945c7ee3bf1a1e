// Package transcript fixes misheard technical vocabulary in candidate
// transcripts.
//
// Speech recognition routinely mangles product and technology names
// ("kubernetis", "type script"). A [Corrector] is built once per interview
// from the job's required skills and the candidate's listed skills and
// rewrites close phonetic matches to the canonical spelling before the
// transcript is persisted or handed to the language model.
package transcript

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/voxhire/internal/transcript/phonetic"
	"github.com/MrWong99/voxhire/pkg/types"
)

const defaultMinTokenLen = 3

// Correction is a single substitution.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// Result pairs the input with the corrected text.
type Result struct {
	Original string
	Text     string

	// Corrections is empty, not nil, when nothing changed.
	Corrections []Correction
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithMatcher replaces the default [phonetic.Matcher].
func WithMatcher(m *phonetic.Matcher) Option {
	return func(c *Corrector) {
		c.matcher = m
	}
}

// WithMinTokenLength sets the shortest single word that is considered for
// correction. Shorter words ("go", "ok") are left alone. Default: 3.
func WithMinTokenLength(n int) Option {
	return func(c *Corrector) {
		c.minTokenLen = n
	}
}

// Corrector is safe for concurrent use.
type Corrector struct {
	matcher     *phonetic.Matcher
	vocab       *phonetic.Vocabulary
	minTokenLen int
}

// New builds a [Corrector] for the given vocabulary.
func New(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		matcher:     phonetic.New(),
		vocab:       phonetic.Prepare(vocabulary),
		minTokenLen: defaultMinTokenLen,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Vocabulary returns the deduplicated union of the job's required skills and
// the candidate's listed skills.
func Vocabulary(ic types.InterviewContext) []string {
	out := make([]string, 0, len(ic.Job.Skills)+len(ic.Candidate.Skills))
	seen := make(map[string]struct{}, cap(out))
	for _, s := range slices.Concat(ic.Job.Skills, ic.Candidate.Skills) {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// Correct rewrites words in text that closely match a vocabulary term. At each
// position the widest matching window wins. Punctuation around a window is
// kept and windows never span punctuation inside them.
func (c *Corrector) Correct(text string) Result {
	res := Result{Original: text, Text: text, Corrections: []Correction{}}
	if c == nil || c.vocab.Len() == 0 {
		return res
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return res
	}
	parts := make([]token, len(tokens))
	for i, t := range tokens {
		parts[i] = splitToken(t)
	}

	out := make([]string, 0, len(tokens))
	changed := false
	for i := 0; i < len(parts); {
		n, replacement, conf := c.matchAt(parts, i)
		if n == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}
		window := joinCores(parts[i : i+n])
		out = append(out, parts[i].lead+replacement+parts[i+n-1].trail)
		res.Corrections = append(res.Corrections, Correction{Original: window, Corrected: replacement, Confidence: conf})
		changed = true
		i += n
	}
	if changed {
		res.Text = strings.Join(out, " ")
	}
	return res
}

// matchAt returns the width of the best correction starting at i, or 0.
func (c *Corrector) matchAt(parts []token, i int) (int, string, float64) {
	maxN := min(c.vocab.MaxWords()+1, len(parts)-i)
	for n := maxN; n >= 1; n-- {
		window := parts[i : i+n]
		if !contiguous(window) {
			continue
		}
		if !c.longEnough(window) {
			continue
		}
		phrase := joinCores(window)
		term, conf, ok := c.matcher.Match(phrase, c.vocab)
		if !ok {
			continue
		}
		if term == phrase || (n == 1 && strings.EqualFold(term, phrase)) {
			// Already right, or differs only in case: leave the speaker's
			// casing alone for common words like "react".
			return 0, "", 0
		}
		return n, term, conf
	}
	return 0, "", 0
}

// longEnough reports whether every word in window meets the minimum length,
// so short function words are never folded into a correction.
func (c *Corrector) longEnough(window []token) bool {
	for _, t := range window {
		if utf8.RuneCountInString(t.core) < c.minTokenLen {
			return false
		}
	}
	return true
}

type token struct {
	lead, core, trail string
}

func splitToken(s string) token {
	core := strings.TrimLeftFunc(s, unicode.IsPunct)
	lead := s[:len(s)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsPunct)
	return token{lead: lead, core: trimmed, trail: core[len(trimmed):]}
}

// contiguous reports whether no punctuation separates the tokens and none of
// them is pure punctuation.
func contiguous(window []token) bool {
	for j, t := range window {
		if t.core == "" {
			return false
		}
		if j > 0 && t.lead != "" {
			return false
		}
		if j < len(window)-1 && t.trail != "" {
			return false
		}
	}
	return true
}

func joinCores(window []token) string {
	cores := make([]string, len(window))
	for i, t := range window {
		cores[i] = t.core
	}
	return strings.Join(cores, " ")
}
