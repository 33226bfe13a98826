// Package inference runs the text categorization pipeline:
// normalize, tokenize, classify and decode.
package inference

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/samcharles93/textcat/internal/logger"
	"github.com/samcharles93/textcat/internal/logits"
	"github.com/samcharles93/textcat/internal/tokenizer"
)

// ErrNoEmbedder is returned by Embed when the classifier cannot embed.
var ErrNoEmbedder = errors.New("classifier does not support embeddings")

type Options struct {
	Normalizer Normalizer
	Tokenizer  Encoder
	Classifier Classifier
	// Labels maps category indices to names; its length must equal the
	// classifier output count.
	Labels    []string
	MaxLength int
	// Workers bounds concurrent items in PredictBatch; 0 means GOMAXPROCS.
	Workers int
	Version string
}

// Pipeline is immutable after New and safe for concurrent use.
type Pipeline struct {
	norm    Normalizer
	tok     Encoder
	clf     Classifier
	labels  []string
	maxLen  int
	workers int
	version string
}

func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Normalizer == nil:
		return nil, fmt.Errorf("normalizer is required")
	case opts.Tokenizer == nil:
		return nil, fmt.Errorf("tokenizer is required")
	case opts.Classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case len(opts.Labels) == 0:
		return nil, fmt.Errorf("at least one label is required")
	case opts.MaxLength < 2:
		return nil, fmt.Errorf("max length must be at least 2, got %d", opts.MaxLength)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{
		norm:    opts.Normalizer,
		tok:     opts.Tokenizer,
		clf:     opts.Classifier,
		labels:  append([]string(nil), opts.Labels...),
		maxLen:  opts.MaxLength,
		workers: workers,
		version: opts.Version,
	}, nil
}

func (p *Pipeline) Labels() []string { return append([]string(nil), p.labels...) }
func (p *Pipeline) MaxLength() int   { return p.maxLen }
func (p *Pipeline) Version() string  { return p.version }
func (p *Pipeline) Workers() int     { return p.workers }

// Predict runs one text through the pipeline. Errors are *StageError.
func (p *Pipeline) Predict(ctx context.Context, text string) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	start := time.Now()

	enc, normalized, err := p.prepare(text)
	if err != nil {
		return Prediction{}, err
	}

	out, err := safeClassify(p.clf, enc)
	if err != nil {
		return Prediction{}, &StageError{Stage: StageClassify, Err: err}
	}

	pred, err := p.decode(out)
	if err != nil {
		return Prediction{}, &StageError{Stage: StageDecode, Err: err}
	}
	pred.Normalized = normalized
	pred.Tokens = enc.RealLen()

	logger.FromContext(ctx).Debug("prediction",
		"label", pred.Label,
		"confidence", pred.Confidence,
		"tokens", pred.Tokens,
		"duration", time.Since(start),
	)
	return pred, nil
}

// PredictBatch returns exactly one item per input, in input order. Items run
// concurrently up to the worker limit; a failing item never affects the
// others. Items not started before ctx is done carry ctx.Err().
func (p *Pipeline) PredictBatch(ctx context.Context, texts []string) []BatchItem {
	items := make([]BatchItem, len(texts))
	if len(texts) == 0 {
		return items
	}

	sem := semaphore.NewWeighted(int64(p.workers))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			items[i].Err = err
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			items[i].Err = err
			continue
		}
		go func() {
			defer sem.Release(1)
			pred, err := p.Predict(ctx, text)
			if err != nil {
				items[i].Err = err
				return
			}
			items[i].Prediction = &pred
		}()
	}
	// Wait for in-flight items. Background is used so cancellation cannot
	// return before every goroutine has written its slot.
	_ = sem.Acquire(context.Background(), int64(p.workers))
	return items
}

// Embed returns the encoder's sentence embedding for text.
func (p *Pipeline) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb, ok := p.clf.(Embedder)
	if !ok {
		return nil, ErrNoEmbedder
	}
	enc, _, err := p.prepare(text)
	if err != nil {
		return nil, err
	}
	v, err := emb.Embed(enc)
	if err != nil {
		return nil, &StageError{Stage: StageClassify, Err: err}
	}
	return v, nil
}

func (p *Pipeline) prepare(text string) (tokenizer.Encoded, string, error) {
	normalized, err := safeNormalize(p.norm, text)
	if err != nil {
		return tokenizer.Encoded{}, "", &StageError{Stage: StageNormalize, Err: err}
	}
	enc, err := safeEncode(p.tok, normalized, p.maxLen)
	if err != nil {
		return tokenizer.Encoded{}, "", &StageError{Stage: StageTokenize, Err: err}
	}
	return enc, normalized, nil
}

func (p *Pipeline) decode(out []float32) (Prediction, error) {
	if len(out) != len(p.labels) {
		return Prediction{}, fmt.Errorf("classifier returned %d logits for %d labels", len(out), len(p.labels))
	}
	d, err := logits.Decode(out)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{
		Category:      d.Index,
		Label:         p.labels[d.Index],
		Confidence:    d.Confidence,
		Probabilities: d.Probabilities,
	}, nil
}

func safeNormalize(n Normalizer, text string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Normalize: %v", rec)
		}
	}()
	return n.Normalize(text)
}

func safeEncode(tok Encoder, text string, maxLength int) (enc tokenizer.Encoded, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic in Encode: %v", tokenizer.ErrTokenization, rec)
		}
	}()
	return tok.Encode(text, maxLength)
}

func safeClassify(c Classifier, enc tokenizer.Encoded) (out []float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Classify: %v", rec)
		}
	}()
	return c.Classify(enc)
}
