package features

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/textcat/internal/logger"
)

// Embedder returns a fixed-width vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Generator struct {
	MaxFeatures int
	// Embedder is optional; without it only TF-IDF columns are produced.
	Embedder Embedder
	// Workers bounds concurrent Embed calls.
	Workers int
	// Scale standardizes the combined columns.
	Scale bool
}

type Result struct {
	Names []string
	Rows  [][]float64
}

// Generate builds TF-IDF columns followed by embedding_<i> columns.
func (g *Generator) Generate(ctx context.Context, texts []string) (Result, error) {
	vec := NewTFIDF(g.MaxFeatures)
	rows := vec.FitTransform(texts)
	names := vec.FeatureNames()

	if g.Embedder != nil && len(texts) > 0 {
		embs, err := g.embed(ctx, texts)
		if err != nil {
			return Result{}, err
		}
		width := len(embs[0])
		for i, e := range embs {
			if len(e) != width {
				return Result{}, fmt.Errorf("embedding %d has width %d, want %d", i, len(e), width)
			}
			for _, x := range e {
				rows[i] = append(rows[i], float64(x))
			}
		}
		for i := range width {
			names = append(names, "embedding_"+strconv.Itoa(i))
		}
	}

	if g.Scale {
		sc, err := FitScaler(rows)
		if err != nil {
			return Result{}, err
		}
		if err := sc.Transform(rows); err != nil {
			return Result{}, err
		}
	}

	logger.FromContext(ctx).Debug("features generated",
		"texts", len(texts),
		"tfidf", len(vec.FeatureNames()),
		"columns", len(names),
	)
	return Result{Names: names, Rows: rows}, nil
}

func (g *Generator) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	eg, ctx := errgroup.WithContext(ctx)
	if g.Workers > 0 {
		eg.SetLimit(g.Workers)
	}
	for i, t := range texts {
		eg.Go(func() error {
			v, err := g.Embedder.Embed(ctx, t)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
