// Package phonetic matches misheard words against a small vocabulary of
// technical terms using Double Metaphone encoding and Jaro-Winkler similarity.
//
// Candidates whose Double Metaphone codes overlap with the input are accepted
// at the phonetic threshold. Everything else must clear the stricter fuzzy
// threshold on plain string similarity.
package phonetic

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.90
	defaultFuzzyThreshold    = 0.94
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a term whose
// phonetic codes overlap the input. Default: 0.90.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term with no
// phonetic overlap. Default: 0.94.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type term struct {
	original string
	lower    string
	tokens   []string
	codes    map[string]struct{}
}

// Vocabulary is a precomputed term list. Build it once per interview with
// [Prepare] and reuse it for every transcript.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// Prepare encodes terms for matching. Blank entries and case-insensitive
// duplicates are dropped; the first spelling wins.
func Prepare(terms []string) *Vocabulary {
	v := &Vocabulary{}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		lower := strings.ToLower(t)
		if lower == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			original: t,
			lower:    lower,
			tokens:   tokens,
			codes:    codesForTokens(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len returns the number of distinct terms.
func (v *Vocabulary) Len() int { return len(v.terms) }

// MaxWords returns the word count of the longest term.
func (v *Vocabulary) MaxWords() int { return v.maxWords }

// Match returns the vocabulary term most similar to phrase. When matched is
// false, corrected equals phrase and confidence is 0.
//
// A phrase is only compared with terms that have at most one word fewer than
// it, so a misheard compound ("type script") can still map to a single-word
// term without swallowing neighbouring words.
func (m *Matcher) Match(phrase string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v == nil || len(v.terms) == 0 || strings.TrimSpace(phrase) == "" {
		return phrase, 0, false
	}

	lower := strings.ToLower(strings.TrimSpace(phrase))
	tokens := strings.Fields(lower)
	inputCodes := codesForTokens(tokens)

	var (
		best         *term
		bestScore    float64
		bestPhonetic bool
	)
	for i := range v.terms {
		t := &v.terms[i]
		if len(tokens) > len(t.tokens)+1 || len(t.tokens) > len(tokens) {
			continue
		}
		score := similarity(tokens, t.tokens, lower, t.lower)
		if codesOverlap(inputCodes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t, score
		}
	}
	if best == nil {
		return phrase, 0, false
	}
	return best.original, bestScore, true
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, the
// space-stripped strings and, for equal word counts, aligned word pairs. A
// phrase with more words than the term is only compared space-stripped and
// must be within one letter of the term's length, otherwise the prefix bonus
// lets "kubernetis in" pass for "kubernetes".
func similarity(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	if len(inputTokens) > len(termTokens) {
		a := strings.Join(inputTokens, "")
		b := strings.Join(termTokens, "")
		if d := utf8.RuneCountInString(a) - utf8.RuneCountInString(b); d > 1 || d < -1 {
			return 0
		}
		return matchr.JaroWinkler(a, b, false)
	}

	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		a := strings.Join(inputTokens, "")
		b := strings.Join(termTokens, "")
		score = max(score, matchr.JaroWinkler(a, b, false))
	}

	if len(inputTokens) == len(termTokens) && len(inputTokens) > 1 {
		// Every aligned pair has to be close, not just one of them.
		worst := 1.0
		for i := range inputTokens {
			worst = min(worst, matchr.JaroWinkler(inputTokens[i], termTokens[i], false))
		}
		score = max(score, worst)
	}
	return score
}
