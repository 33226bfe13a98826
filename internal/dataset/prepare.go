package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// DefaultSeed matches the split seed used when the training data was
// prepared, so splits are reproducible across runs.
const DefaultSeed = 42

type Normalizer interface {
	Normalize(text string) (string, error)
}

// Example is one prepared training row.
type Example struct {
	Text       string `json:"text"`
	Normalized string `json:"normalized"`
	Label      int    `json:"label"`
	Category   string `json:"category"`
}

type PrepareOptions struct {
	TextColumn  string
	LabelColumn string
	// Categories defines the label ids: Categories[i] has id i.
	Categories []string
	// ValidationSplit is the fraction of rows held out, in [0, 1).
	ValidationSplit float64
	Seed            uint64
	Normalizer      Normalizer
}

// PrepareStats counts rows that did not make it into the split.
type PrepareStats struct {
	Rows            int
	UnknownCategory int
	EmptyText       int
	NormalizeFailed int
}

type Split struct {
	Train      []Example
	Validation []Example
	Stats      PrepareStats
}

// LabelMap returns category -> id.
func LabelMap(categories []string) map[string]int {
	m := make(map[string]int, len(categories))
	for i, c := range categories {
		m[c] = i
	}
	return m
}

// Prepare normalizes every row, maps categories to ids and splits the
// examples into train and validation sets.
func Prepare(t *Table, opts PrepareOptions) (Split, error) {
	if opts.Normalizer == nil {
		return Split{}, fmt.Errorf("normalizer is required")
	}
	if len(opts.Categories) == 0 {
		return Split{}, fmt.Errorf("categories are required")
	}
	if opts.ValidationSplit < 0 || opts.ValidationSplit >= 1 {
		return Split{}, fmt.Errorf("validation split must be in [0, 1), got %v", opts.ValidationSplit)
	}
	texts, err := t.Values(opts.TextColumn)
	if err != nil {
		return Split{}, err
	}
	cats, err := t.Values(opts.LabelColumn)
	if err != nil {
		return Split{}, err
	}

	ids := LabelMap(opts.Categories)
	var (
		stats    = PrepareStats{Rows: len(texts)}
		examples = make([]Example, 0, len(texts))
	)
	for i, text := range texts {
		cat := strings.TrimSpace(cats[i])
		id, ok := ids[cat]
		if !ok {
			stats.UnknownCategory++
			continue
		}
		if IsNull(text) {
			stats.EmptyText++
			continue
		}
		norm, err := opts.Normalizer.Normalize(text)
		if err != nil {
			stats.NormalizeFailed++
			continue
		}
		examples = append(examples, Example{Text: text, Normalized: norm, Label: id, Category: cat})
	}

	train, val := SplitExamples(examples, opts.ValidationSplit, opts.Seed)
	return Split{Train: train, Validation: val, Stats: stats}, nil
}

// SplitExamples shuffles with a seeded PCG source and holds out
// ceil(fraction*n) items for validation.
func SplitExamples[T any](items []T, fraction float64, seed uint64) (train, val []T) {
	n := len(items)
	nVal := int(math.Ceil(fraction * float64(n)))
	if fraction > 0 && nVal >= n && n > 1 {
		nVal = n - 1
	}
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	train = make([]T, 0, n-nVal)
	val = make([]T, 0, nVal)
	for i, p := range perm {
		if i < nVal {
			val = append(val, items[p])
		} else {
			train = append(train, items[p])
		}
	}
	return train, val
}
