package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/textcat/internal/dataset"
	"github.com/samcharles93/textcat/internal/features"
	"github.com/samcharles93/textcat/internal/logger"
)

// featureRow is one JSON line of generated features.
type featureRow struct {
	Label    int       `json:"label"`
	Features []float64 `json:"features"`
}

func featuresCmd() *cli.Command {
	var (
		outDir      string
		maxFeatures int64
		embeddings  bool
		scale       bool
	)

	return &cli.Command{
		Name:      "features",
		Usage:     "Generate TF-IDF (and optionally encoder embedding) features from prepared JSON lines",
		ArgsUsage: "<examples.jsonl>",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Value:       "features",
				Destination: &outDir,
			},
			&cli.Int64Flag{
				Name:        "max-features",
				Value:       features.DefaultMaxFeatures,
				Destination: &maxFeatures,
			},
			&cli.BoolFlag{
				Name:        "embeddings",
				Usage:       "append encoder embeddings (loads the model)",
				Destination: &embeddings,
			},
			&cli.BoolFlag{
				Name:        "scale",
				Usage:       "standardize every column",
				Value:       true,
				Destination: &scale,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: features takes exactly one JSON lines path", 1)
			}
			f, err := os.Open(cmd.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			examples, err := dataset.ReadJSONL[dataset.Example](f)
			_ = f.Close()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(examples) == 0 {
				return cli.Exit("error: no examples", 1)
			}

			texts := make([]string, len(examples))
			for i, ex := range examples {
				texts[i] = ex.Normalized
			}
			gen := features.Generator{
				MaxFeatures: int(maxFeatures),
				Scale:       scale,
			}
			if embeddings {
				_, loaded, err := loadPipeline(ctx, cmd)
				if err != nil {
					return err
				}
				gen.Embedder = loaded.Pipeline
				gen.Workers = loaded.Pipeline.Workers()
			}
			res, err := gen.Generate(ctx, texts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			rows := make([]featureRow, len(examples))
			for i, ex := range examples {
				rows[i] = featureRow{Label: ex.Label, Features: res.Rows[i]}
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			rowsPath := filepath.Join(outDir, "features.jsonl")
			if err := dataset.WriteJSONLFile(rowsPath, rows); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			names := strings.Join(res.Names, "\n") + "\n"
			if err := os.WriteFile(filepath.Join(outDir, "feature_names.txt"), []byte(names), 0o644); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("features generated", "rows", len(rows), "columns", len(res.Names), "out", outDir)
			return nil
		},
	}
}
