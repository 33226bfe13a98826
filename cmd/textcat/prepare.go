package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/textcat/internal/dataset"
	"github.com/samcharles93/textcat/internal/logger"
	"github.com/samcharles93/textcat/internal/textnorm"
)

func prepareCmd() *cli.Command {
	var (
		outDir      string
		textColumn  string
		labelColumn string
		split       float64
		seed        int64
	)

	return &cli.Command{
		Name:      "prepare",
		Usage:     "Normalize a labeled dataset and write train/validation JSON lines",
		ArgsUsage: "<dataset>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Value:       "prepared",
				Destination: &outDir,
			},
			&cli.StringFlag{
				Name:        "text-column",
				Value:       "text",
				Destination: &textColumn,
			},
			&cli.StringFlag{
				Name:        "label-column",
				Value:       "category",
				Destination: &labelColumn,
			},
			&cli.StringSliceFlag{
				Name:        "category",
				Aliases:     []string{"c"},
				Usage:       "category label in id order (default: config categories)",
				Destination: &categories,
			},
			&cli.Float64Flag{
				Name:        "validation-split",
				Value:       0.2,
				Destination: &split,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Value:       dataset.DefaultSeed,
				Destination: &seed,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: prepare takes exactly one dataset path", 1)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(cfg.Categories) == 0 {
				return cli.Exit("error: no categories (set categories in config or pass --category)", 1)
			}

			table, err := dataset.ReadTable(cmd.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			res, err := dataset.Prepare(table, dataset.PrepareOptions{
				TextColumn:      textColumn,
				LabelColumn:     labelColumn,
				Categories:      cfg.Categories,
				ValidationSplit: split,
				Seed:            uint64(seed),
				Normalizer:      textnorm.New(textnorm.WithStopwords(cfg.Pipeline.ExtraStopwords...)),
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			trainPath := filepath.Join(outDir, "train.jsonl")
			valPath := filepath.Join(outDir, "validation.jsonl")
			if err := dataset.WriteJSONLFile(trainPath, res.Train); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := dataset.WriteJSONLFile(valPath, res.Validation); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			labels := strings.Join(cfg.Categories, "\n") + "\n"
			if err := os.WriteFile(filepath.Join(outDir, "labels.txt"), []byte(labels), 0o644); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			log.Info("dataset prepared",
				"rows", res.Stats.Rows,
				"train", len(res.Train),
				"validation", len(res.Validation),
				"unknown_category", res.Stats.UnknownCategory,
				"empty_text", res.Stats.EmptyText,
				"normalize_failed", res.Stats.NormalizeFailed,
				"out", outDir,
			)
			return nil
		},
	}
}
