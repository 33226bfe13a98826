package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/textcat/internal/config"
	"github.com/samcharles93/textcat/internal/inference"
	"github.com/samcharles93/textcat/internal/logger"
)

// loadConfig reads the config file and applies explicitly set model flags
// on top of it.
func loadConfig(c *cli.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	applyModelFlags(c, &cfg)
	return cfg, nil
}

func applyModelFlags(c *cli.Command, cfg *config.Config) {
	if c.IsSet("checkpoint") {
		cfg.Model.Checkpoint = checkpointPath
	}
	if c.IsSet("model-config") {
		cfg.Model.Config = modelConfigPath
	}
	if c.IsSet("tokenizer") {
		cfg.Model.Tokenizer = tokenizerPath
	}
	if c.IsSet("category") {
		cfg.Categories = splitCategories(categories)
	}
	if c.IsSet("max-length") {
		cfg.Model.MaxLength = int(maxLength)
	}
	if c.IsSet("head") {
		cfg.Model.Head = head
	}
	if c.IsSet("workers") {
		cfg.Pipeline.Workers = int(workers)
	}
}

// splitCategories accepts both repeated flags and comma lists.
func splitCategories(in []string) []string {
	var out []string
	for _, v := range in {
		for part := range strings.SplitSeq(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// loadPipeline loads the config and pipeline for offline commands, which
// never need the auth secret.
func loadPipeline(ctx context.Context, c *cli.Command) (config.Config, *inference.Loaded, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return config.Config{}, nil, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	cfg.Auth.Enabled = false
	loaded, err := inference.Load(ctx, cfg)
	if err != nil {
		return config.Config{}, nil, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return cfg, loaded, nil
}

func createOutput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func logWritten(ctx context.Context, what, path string, n int) {
	if path == "" || path == "-" {
		return
	}
	logger.FromContext(ctx).Info("wrote "+what, "path", path, "count", n)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
