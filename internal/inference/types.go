package inference

import (
	"fmt"

	"github.com/samcharles93/textcat/internal/tokenizer"
)

// Stage names the pipeline step that produced an error.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageTokenize  Stage = "tokenize"
	StageClassify  Stage = "classify"
	StageDecode    Stage = "decode"
)

// StageError attributes a failure to a pipeline stage. It unwraps to the
// stage's own error, so errors.Is matches the component sentinels.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Prediction is the decoded result for one text.
type Prediction struct {
	Category      int
	Label         string
	Confidence    float64
	Probabilities []float64
	// Normalized is the cleaned text that was tokenized.
	Normalized string
	// Tokens is the number of non-padding positions, [CLS] and [SEP] included.
	Tokens int
}

// BatchItem holds either a Prediction or the error for one batch input.
type BatchItem struct {
	Prediction *Prediction
	Err        error
}

// Normalizer cleans raw text.
type Normalizer interface {
	Normalize(text string) (string, error)
}

// Encoder produces fixed-length model input.
type Encoder interface {
	Encode(text string, maxLength int) (tokenizer.Encoded, error)
}

// Classifier maps encoded input to one logit per label.
type Classifier interface {
	Classify(enc tokenizer.Encoded) ([]float32, error)
}

// Embedder is implemented by classifiers that can return a sentence embedding.
type Embedder interface {
	Embed(enc tokenizer.Encoded) ([]float32, error)
}
