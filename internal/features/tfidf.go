// Package features turns texts into numeric feature rows: TF-IDF term
// weights, sentence embeddings from the encoder, and standard scaling.
package features

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"unicode"
)

// DefaultMaxFeatures caps the TF-IDF vocabulary.
const DefaultMaxFeatures = 5000

// Terms lowercases doc and returns runs of two or more letters, digits or
// underscores.
func Terms(doc string) []string {
	var out []string
	start := -1
	flush := func(end int) {
		if start >= 0 {
			if w := doc[start:end]; len([]rune(w)) >= 2 {
				out = append(out, strings.ToLower(w))
			}
			start = -1
		}
	}
	for i, r := range doc {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(doc))
	return out
}

// TFIDF weights raw term counts by smoothed inverse document frequency,
// idf = ln((1+n)/(1+df)) + 1, and L2-normalizes each row.
type TFIDF struct {
	MaxFeatures int

	terms []string
	index map[string]int
	idf   []float64
}

func NewTFIDF(maxFeatures int) *TFIDF {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	return &TFIDF{MaxFeatures: maxFeatures}
}

// Fit learns the vocabulary: the MaxFeatures most frequent terms across the
// corpus (ties broken alphabetically), ordered alphabetically.
func (v *TFIDF) Fit(docs []string) {
	total := make(map[string]int)
	df := make(map[string]int)
	for _, d := range docs {
		seen := make(map[string]bool)
		for _, t := range Terms(d) {
			total[t]++
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	terms := make([]string, 0, len(total))
	for t := range total {
		terms = append(terms, t)
	}
	slices.SortFunc(terms, func(a, b string) int {
		if c := cmp.Compare(total[b], total[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if len(terms) > v.MaxFeatures {
		terms = terms[:v.MaxFeatures]
	}
	slices.Sort(terms)

	n := float64(len(docs))
	v.terms = terms
	v.index = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, t := range terms {
		v.index[t] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}
}

// Transform returns one dense row per document. Terms outside the fitted
// vocabulary are ignored.
func (v *TFIDF) Transform(docs []string) [][]float64 {
	rows := make([][]float64, len(docs))
	for i, d := range docs {
		row := make([]float64, len(v.terms))
		for _, t := range Terms(d) {
			if j, ok := v.index[t]; ok {
				row[j]++
			}
		}
		var norm float64
		for j := range row {
			row[j] *= v.idf[j]
			norm += row[j] * row[j]
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range row {
				row[j] /= norm
			}
		}
		rows[i] = row
	}
	return rows
}

func (v *TFIDF) FitTransform(docs []string) [][]float64 {
	v.Fit(docs)
	return v.Transform(docs)
}

// FeatureNames returns the vocabulary in column order.
func (v *TFIDF) FeatureNames() []string {
	return slices.Clone(v.terms)
}

func (v *TFIDF) IDF() []float64 {
	return slices.Clone(v.idf)
}
