// Package tokenizer converts normalized text into the fixed-length id and
// attention-mask arrays a BERT encoder consumes.
package tokenizer

import (
	"errors"
	"fmt"
)

// ErrTokenization wraps every tokenizer load or encode failure.
var ErrTokenization = errors.New("tokenization failed")

// Tokenizer defines the interface used by the inference pipeline.
type Tokenizer interface {
	Encode(text string, maxLength int) (Encoded, error)
	Decode(ids []int) string
	VocabSize() int
}

// Encoded is a fixed-length model input. All three slices have the same
// length; padding occupies a contiguous tail where Mask is 0.
type Encoded struct {
	IDs     []int
	Mask    []int
	TypeIDs []int
}

// Len returns the padded sequence length.
func (e Encoded) Len() int { return len(e.IDs) }

// RealLen returns the number of non-padding positions.
func (e Encoded) RealLen() int {
	n := 0
	for _, m := range e.Mask {
		if m != 0 {
			n++
		}
	}
	return n
}

// Validate checks the shape invariants of an encoded sequence.
func (e Encoded) Validate() error {
	if len(e.Mask) != len(e.IDs) || len(e.TypeIDs) != len(e.IDs) {
		return fmt.Errorf("%w: ids/mask/type lengths %d/%d/%d differ", ErrTokenization, len(e.IDs), len(e.Mask), len(e.TypeIDs))
	}
	seenPad := false
	for i, m := range e.Mask {
		switch {
		case m != 0 && m != 1:
			return fmt.Errorf("%w: mask[%d]=%d", ErrTokenization, i, m)
		case m == 0:
			seenPad = true
		case seenPad:
			return fmt.Errorf("%w: real token at %d after padding", ErrTokenization, i)
		}
	}
	return nil
}
