package inference

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/samcharles93/textcat/internal/config"
	"github.com/samcharles93/textcat/internal/logger"
	"github.com/samcharles93/textcat/internal/model"
	"github.com/samcharles93/textcat/internal/textnorm"
	"github.com/samcharles93/textcat/internal/tokenizer"
)

// Loaded bundles a ready pipeline with the components it was built from,
// for callers that need model details (inspect, features, health).
type Loaded struct {
	Pipeline   *Pipeline
	Classifier *model.Classifier
	Tokenizer  *tokenizer.WordPiece
	Normalizer *textnorm.Normalizer
}

// Load validates cfg and builds every pipeline component from it.
func Load(ctx context.Context, cfg config.Config) (*Loaded, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	start := time.Now()

	tok, err := tokenizer.Load(cfg.Model.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	var opts []model.LoadOption
	if cfg.Model.Head != "" {
		opts = append(opts, model.WithHead(model.HeadKind(cfg.Model.Head)))
	}
	clf, err := model.Load(cfg.Model.Checkpoint, cfg.Model.Config, len(cfg.Categories), opts...)
	if err != nil {
		return nil, err
	}

	if stored := clf.Config.Labels(); labelsDiffer(stored, cfg.Categories) {
		log.Warn("configured categories differ from checkpoint id2label; predictions use the configured order",
			"categories", cfg.Categories,
			"id2label", stored,
		)
	}

	if cfg.Model.MaxLength > clf.MaxPositions() {
		return nil, fmt.Errorf("%w: model.max_length %d exceeds model position limit %d",
			config.ErrInvalidConfig, cfg.Model.MaxLength, clf.MaxPositions())
	}
	if tok.VocabSize() > clf.Config.VocabSize {
		return nil, fmt.Errorf("%w: tokenizer vocabulary %d exceeds model vocabulary %d",
			model.ErrModelLoad, tok.VocabSize(), clf.Config.VocabSize)
	}

	norm := textnorm.New(textnorm.WithStopwords(cfg.Pipeline.ExtraStopwords...))

	p, err := New(Options{
		Normalizer: norm,
		Tokenizer:  tok,
		Classifier: clf,
		Labels:     cfg.Categories,
		MaxLength:  cfg.Model.MaxLength,
		Workers:    cfg.Pipeline.Workers,
		Version:    cfg.Model.Version,
	})
	if err != nil {
		return nil, err
	}

	log.Info("pipeline loaded",
		"checkpoint", cfg.Model.Checkpoint,
		"head", clf.Head,
		"layers", clf.Config.NumHiddenLayers,
		"hidden", clf.HiddenSize(),
		"params", clf.NumParams(),
		"vocab", tok.VocabSize(),
		"labels", len(cfg.Categories),
		"max_length", cfg.Model.MaxLength,
		"workers", p.Workers(),
		"duration", time.Since(start),
	)
	return &Loaded{Pipeline: p, Classifier: clf, Tokenizer: tok, Normalizer: norm}, nil
}

// labelsDiffer reports whether a checkpoint's id2label disagrees with the
// configured categories. Placeholder names (LABEL_0, LABEL_1, ...) written
// by untouched HuggingFace configs carry no information and never differ.
func labelsDiffer(stored, configured []string) bool {
	if len(stored) == 0 {
		return false
	}
	placeholder := true
	for i, l := range stored {
		if l != "LABEL_"+strconv.Itoa(i) {
			placeholder = false
			break
		}
	}
	if placeholder {
		return false
	}
	return !slices.Equal(stored, configured)
}
