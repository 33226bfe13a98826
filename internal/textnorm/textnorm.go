// Package textnorm implements the deterministic text cleaning applied to
// every input before tokenization: lowercasing, stripping non-letters,
// Unicode NFKD folding, stopword removal and noun lemmatization.
package textnorm

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrNormalizationFailed is returned for input that cannot be normalized.
var ErrNormalizationFailed = errors.New("normalization failed")

//go:embed data/stopwords.txt
var stopwordData []byte

// Normalizer is safe for concurrent use; its tables are never mutated after New.
type Normalizer struct {
	stopwords map[string]struct{}
	lemmas    *Lemmatizer
}

type Option func(*Normalizer)

// WithStopwords adds words to the stopword set.
func WithStopwords(words ...string) Option {
	return func(n *Normalizer) {
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				n.stopwords[w] = struct{}{}
			}
		}
	}
}

// WithLemmatizer replaces the embedded lemmatizer.
func WithLemmatizer(l *Lemmatizer) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.lemmas = l
		}
	}
}

// New returns a Normalizer using the embedded English stopword list and
// lemma tables.
func New(opts ...Option) *Normalizer {
	words := parseWordList(stopwordData)
	n := &Normalizer{
		stopwords: make(map[string]struct{}, len(words)),
		lemmas:    DefaultLemmatizer(),
	}
	for _, w := range words {
		n.stopwords[w] = struct{}{}
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// IsStopword reports whether w is in the stopword set.
func (n *Normalizer) IsStopword(w string) bool {
	_, ok := n.stopwords[w]
	return ok
}

// Normalize cleans text. The result is a possibly empty string of lowercase
// ASCII words separated by single spaces, and Normalize(Normalize(s)) equals
// Normalize(s).
func (n *Normalizer) Normalize(text string) (out string, err error) {
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: input is not valid UTF-8", ErrNormalizationFailed)
	}
	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = fmt.Errorf("%w: panic: %v", ErrNormalizationFailed, r)
		}
	}()

	lowered := strings.ToLower(text)
	letters := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		if unicode.IsSpace(r) {
			return ' '
		}
		return -1
	}, lowered)
	folded := asciiFold(letters)

	words := strings.Fields(folded)
	kept := words[:0]
	for _, w := range words {
		if n.IsStopword(w) {
			continue
		}
		lemma := n.lemmas.Lemma(w)
		if lemma == "" || n.IsStopword(lemma) {
			continue
		}
		kept = append(kept, lemma)
	}
	return strings.Join(kept, " "), nil
}

// Result is one element of a batch normalization.
type Result struct {
	Text string
	Err  error
}

// NormalizeBatch normalizes every input. A failing item carries its error
// and does not affect the others.
func (n *Normalizer) NormalizeBatch(texts []string) []Result {
	out := make([]Result, len(texts))
	for i, t := range texts {
		out[i].Text, out[i].Err = n.Normalize(t)
	}
	return out
}

// asciiFold applies NFKD and drops every non-ASCII rune left over, so
// compatibility characters decompose to their ASCII base where one exists.
func asciiFold(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	return b.String()
}
