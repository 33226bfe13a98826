// Package logits turns classifier logits into a probability distribution
// and a decision.
package logits

import (
	"errors"
	"math"
	"slices"
)

var (
	ErrEmptyLogits     = errors.New("empty logits")
	ErrNonFiniteLogits = errors.New("non-finite logits")
)

// Decision is the decoded classifier output.
type Decision struct {
	Index         int
	Confidence    float64
	Probabilities []float64
}

// Ranked is one class with its probability.
type Ranked struct {
	Index       int
	Probability float64
}

// Softmax64 computes a numerically stable softmax in float64. The result
// sums to 1 within floating point error.
func Softmax64(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxv := float64(logits[0])
	for _, v := range logits[1:] {
		maxv = math.Max(maxv, float64(v))
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v) - maxv)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Argmax returns the index of the largest value. Ties go to the lowest
// index; an empty slice returns -1.
func Argmax(xs []float64) int {
	best := -1
	for i, v := range xs {
		if best < 0 || v > xs[best] {
			best = i
		}
	}
	return best
}

// Decode applies softmax and argmax. Confidence is the winning probability.
func Decode(logits []float32) (Decision, error) {
	if len(logits) == 0 {
		return Decision{}, ErrEmptyLogits
	}
	for _, v := range logits {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Decision{}, ErrNonFiniteLogits
		}
	}
	probs := Softmax64(logits)
	idx := Argmax(probs)
	return Decision{Index: idx, Confidence: probs[idx], Probabilities: probs}, nil
}

// TopK returns the k most probable classes, highest first, ties by index.
func TopK(probs []float64, k int) []Ranked {
	ranked := make([]Ranked, len(probs))
	for i, p := range probs {
		ranked[i] = Ranked{Index: i, Probability: p}
	}
	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		switch {
		case a.Probability > b.Probability:
			return -1
		case a.Probability < b.Probability:
			return 1
		}
		return 0
	})
	if k > 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}
