package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/textcat/internal/config"
	"github.com/samcharles93/textcat/internal/logger"
	"github.com/samcharles93/textcat/internal/toy"
)

func toyCmd() *cli.Command {
	var (
		outDir string
		pooled bool
		seed   int64
	)

	return &cli.Command{
		Name:  "toy",
		Usage: "Write a tiny random classifier and a matching config.yaml for smoke tests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Value:       "toy-model",
				Destination: &outDir,
			},
			&cli.BoolFlag{
				Name:        "pooled",
				Usage:       "include pooler weights",
				Destination: &pooled,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Value:       42,
				Destination: &seed,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			spec := toy.DefaultSpec()
			spec.Pooled = pooled
			spec.Seed = seed
			paths, err := toy.Write(outDir, spec)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			cfg := toyConfig(paths, spec)
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			cfgPath := filepath.Join(outDir, "config.yaml")
			if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			logger.FromContext(ctx).Info("toy model written", "dir", outDir, "config", cfgPath, "labels", spec.Labels)
			return nil
		},
	}
}

// toyConfig points at the written files relative to the config itself.
func toyConfig(paths toy.Paths, spec toy.Spec) config.Config {
	cfg := config.Default()
	cfg.Model.Checkpoint = filepath.Base(paths.Checkpoint)
	cfg.Model.Config = filepath.Base(paths.Config)
	cfg.Model.Tokenizer = filepath.Base(paths.Vocab)
	cfg.Model.Version = "toy"
	cfg.Model.MaxLength = spec.MaxPositions
	cfg.Categories = append([]string(nil), spec.Labels...)
	cfg.Auth.Enabled = false
	return cfg
}
