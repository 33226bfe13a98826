// Package model implements a CPU BERT encoder with a linear classification
// head, loaded from safetensors checkpoints.
package model

import (
	"errors"

	"github.com/samcharles93/textcat/internal/tensor"
)

var (
	// ErrModelLoad is returned when a checkpoint or config cannot be used.
	ErrModelLoad = errors.New("model load failed")
	// ErrInferenceFailed is returned when a forward pass cannot produce
	// finite logits.
	ErrInferenceFailed = errors.New("inference failed")
)

// Classifier is an encoder plus classification head. Weights are read-only
// after Load and every forward pass allocates its own scratch, so one
// Classifier can serve many goroutines.
type Classifier struct {
	Config *Config
	Head   HeadKind

	hidden  int
	nHeads  int
	headDim int
	eps     float32
	act     func(float32) float32

	wordEmb  *tensor.Mat
	posEmb   *tensor.Mat
	typeEmb  *tensor.Mat
	embNormW []float32
	embNormB []float32

	layers []encoderLayer

	poolerW *tensor.Mat
	poolerB []float32

	classW *tensor.Mat
	classB []float32
}

type encoderLayer struct {
	wq, wk, wv, wo *tensor.Mat
	bq, bk, bv, bo []float32

	attnNormW, attnNormB []float32

	wIn  *tensor.Mat
	bIn  []float32
	wOut *tensor.Mat
	bOut []float32

	outNormW, outNormB []float32
}

// NumLabels returns the number of classifier outputs.
func (c *Classifier) NumLabels() int { return c.classW.R }

// HiddenSize returns the encoder width, which is also the Embed length.
func (c *Classifier) HiddenSize() int { return c.hidden }

// MaxPositions returns the longest sequence the position table supports.
func (c *Classifier) MaxPositions() int { return c.posEmb.R }

// NumParams counts the loaded weights.
func (c *Classifier) NumParams() int {
	n := len(c.wordEmb.Data) + len(c.posEmb.Data) + len(c.typeEmb.Data) + 2*c.hidden
	for _, l := range c.layers {
		for _, m := range []*tensor.Mat{l.wq, l.wk, l.wv, l.wo, l.wIn, l.wOut} {
			n += len(m.Data)
		}
		n += len(l.bq) + len(l.bk) + len(l.bv) + len(l.bo) + len(l.bIn) + len(l.bOut) + 4*c.hidden
	}
	if c.poolerW != nil {
		n += len(c.poolerW.Data) + len(c.poolerB)
	}
	return n + len(c.classW.Data) + len(c.classB)
}
