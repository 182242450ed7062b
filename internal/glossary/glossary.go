// Package glossary fixes speech-to-text errors on known vocabulary: names,
// places and jargon that a speech model tends to mishear.
//
// A phrase in a transcript is replaced by a glossary term in two cases:
//
//  1. Their Double Metaphone codes share at least one code, and their
//     Jaro-Winkler similarity reaches the phonetic threshold (default 0.70).
//  2. Their codes do not overlap, but the Jaro-Winkler similarity alone
//     reaches the fuzzy threshold (default 0.85).
//
// Similarity is the Jaro-Winkler score of the two strings, computed by
// shape: single words are compared directly, phrases with the term's word
// count by the mean of their word-by-word scores, and two words against a
// one-word term with the space removed. The last shape catches a name heard
// as two words ("elder nacks" for "Eldrinax"); it only applies when the
// letter counts are within 25%, so neighbouring words are not swallowed.
// Longer phrases are tried first. Punctuation around a phrase is preserved.
package glossary

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Default similarity thresholds.
const (
	DefaultPhoneticThreshold = 0.70
	DefaultFuzzyThreshold    = 0.85
)

// minLetters skips phrases too short to carry a reliable phonetic code.
const minLetters = 3

// Option configures a [Glossary].
type Option func(*Glossary)

// WithPhoneticThreshold sets the minimum similarity for phonetically
// overlapping phrases.
func WithPhoneticThreshold(t float64) Option {
	return func(g *Glossary) { g.phonetic = t }
}

// WithFuzzyThreshold sets the minimum similarity for phrases without
// phonetic overlap.
func WithFuzzyThreshold(t float64) Option {
	return func(g *Glossary) { g.fuzzy = t }
}

type term struct {
	text   string
	words  []string
	joined string
	codes  codeSet
}

// Glossary is immutable after [New] and safe for concurrent use.
type Glossary struct {
	terms     []term
	maxWindow int
	phonetic float64
	fuzzy    float64
}

// Correction records one replacement made by [Glossary.Correct].
type Correction struct {
	Original  string  `json:"original"`
	Corrected string  `json:"corrected"`
	Score     float64 `json:"score"`
}

// New prepares terms for matching. Blank and duplicate terms are dropped.
func New(terms []string, opts ...Option) *Glossary {
	g := &Glossary{phonetic: DefaultPhoneticThreshold, fuzzy: DefaultFuzzyThreshold}
	for _, o := range opts {
		o(g)
	}
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		lower := strings.ToLower(t)
		if t == "" || seen[lower] {
			continue
		}
		seen[lower] = true
		words := strings.Fields(lower)
		g.terms = append(g.terms, term{
			text:   t,
			words:  words,
			joined: strings.Join(words, ""),
			codes:  codesFor(words),
		})
		g.maxWindow = max(g.maxWindow, len(words))
		if len(words) == 1 {
			g.maxWindow = max(g.maxWindow, 2)
		}
	}
	return g
}

// Len is the number of distinct terms.
func (g *Glossary) Len() int { return len(g.terms) }

// Match returns the term closest to phrase. When ok is false, corrected is
// phrase unchanged and score is 0.
func (g *Glossary) Match(phrase string) (corrected string, score float64, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(phrase))
	if lower == "" || len(g.terms) == 0 {
		return phrase, 0, false
	}
	words := strings.Fields(lower)
	codes := codesFor(words)
	joined := strings.Join(words, "")

	var (
		best         *term
		bestScore    float64
		bestPhonetic bool
	)
	for i := range g.terms {
		t := &g.terms[i]
		if !comparable(words, joined, t) {
			continue
		}
		s := similarity(words, joined, t)
		if codes.overlaps(t.codes) {
			if s >= g.phonetic && (!bestPhonetic || s > bestScore) {
				best, bestScore, bestPhonetic = t, s, true
			}
		} else if !bestPhonetic && s >= g.fuzzy && s > bestScore {
			best, bestScore = t, s
		}
	}
	if best == nil {
		return phrase, 0, false
	}
	return best.text, bestScore, true
}

// Correct replaces misheard terms in text. Whitespace runs collapse to one
// space.
func (g *Glossary) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(g.terms) == 0 {
		return text, nil
	}

	out := make([]string, 0, len(tokens))
	var corrections []Correction
	for i := 0; i < len(tokens); {
		n, replacement, c, ok := g.matchAt(tokens[i:])
		if !ok {
			out = append(out, tokens[i])
			i++
			continue
		}
		out = append(out, replacement)
		if c != nil {
			corrections = append(corrections, *c)
		}
		i += n
	}
	return strings.Join(out, " "), corrections
}

// matchAt tries the longest window first. c is nil when the window already
// spells the term exactly.
func (g *Glossary) matchAt(tokens []string) (n int, replacement string, c *Correction, ok bool) {
	for n = min(g.maxWindow, len(tokens)); n >= 1; n-- {
		prefix, core, suffix, valid := window(tokens[:n])
		if !valid {
			continue
		}
		corrected, score, matched := g.Match(core)
		if !matched {
			continue
		}
		replacement = prefix + corrected + suffix
		if core != corrected {
			c = &Correction{Original: core, Corrected: corrected, Score: score}
		}
		return n, replacement, c, true
	}
	return 0, "", nil, false
}

// window strips punctuation from the words of a phrase, keeping what was
// in front of the first word and behind the last one.
func window(tokens []string) (prefix, core, suffix string, ok bool) {
	words := make([]string, len(tokens))
	letters := 0
	for i, tok := range tokens {
		w := strings.TrimFunc(tok, isPunct)
		if w == "" {
			return "", "", "", false
		}
		words[i] = w
		for _, r := range w {
			if unicode.IsLetter(r) {
				letters++
			}
		}
	}
	if letters < minLetters {
		return "", "", "", false
	}
	first, last := tokens[0], tokens[len(tokens)-1]
	prefix = first[:strings.Index(first, words[0])]
	suffix = last[strings.LastIndex(last, words[len(words)-1])+len(words[len(words)-1]):]
	return prefix, strings.Join(words, " "), suffix, true
}

func isPunct(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }

type codeSet map[string]struct{}

// codesFor returns the primary and secondary Double Metaphone codes of
// every word.
func codesFor(words []string) codeSet {
	codes := make(codeSet, 2*len(words))
	for _, w := range words {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func (a codeSet) overlaps(b codeSet) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// comparable reports whether a phrase may stand for t at all.
func comparable(words []string, joined string, t *term) bool {
	if len(words) == len(t.words) {
		return true
	}
	if len(words) == 2 && len(t.words) == 1 {
		a, b := float64(len(joined)), float64(len(t.joined))
		return a <= 1.25*b && a >= 0.75*b
	}
	return false
}

func similarity(words []string, joined string, t *term) float64 {
	switch {
	case len(words) == 1 && len(t.words) == 1:
		return matchr.JaroWinkler(words[0], t.words[0], false)
	case len(words) == len(t.words):
		var sum float64
		for i := range words {
			sum += matchr.JaroWinkler(words[i], t.words[i], false)
		}
		return sum / float64(len(words))
	default:
		return matchr.JaroWinkler(joined, t.joined, false)
	}
}
