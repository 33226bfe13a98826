package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/textcat/internal/dataset"
	"github.com/samcharles93/textcat/internal/logger"
)

func validateCmd() *cli.Command {
	var schemaPath string

	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a dataset against a table schema (YAML) or JSON documents against a JSON Schema",
		ArgsUsage: "<file...>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "schema",
				Aliases:     []string{"s"},
				Usage:       "schema file (.yaml/.yml table schema or .json JSON Schema)",
				Required:    true,
				Destination: &schemaPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if cmd.Args().Len() == 0 {
				return cli.Exit("error: validate needs at least one file", 1)
			}
			check, err := loadValidator(schemaPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			invalid := 0
			for _, path := range cmd.Args().Slice() {
				err := check(path)
				switch {
				case err == nil:
					fmt.Printf("%s: ok\n", path)
				case errors.Is(err, dataset.ErrSchema):
					invalid++
					fmt.Printf("%s: invalid\n", path)
					for _, line := range strings.Split(err.Error(), "\n") {
						fmt.Printf("  %s\n", line)
					}
				default:
					return cli.Exit(fmt.Sprintf("error: %s: %v", path, err), 1)
				}
			}
			log.Debug("validation finished", "files", cmd.Args().Len(), "invalid", invalid)
			if invalid > 0 {
				return cli.Exit(fmt.Sprintf("error: %d file(s) failed validation", invalid), 1)
			}
			return nil
		},
	}
}

// loadValidator picks the schema flavour by extension.
func loadValidator(schemaPath string) (func(path string) error, error) {
	switch strings.ToLower(filepath.Ext(schemaPath)) {
	case ".json":
		schema, err := dataset.LoadJSONSchema(schemaPath)
		if err != nil {
			return nil, err
		}
		return func(path string) error {
			doc, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			return schema.ValidateDocument(doc)
		}, nil
	case ".yaml", ".yml":
		schema, err := dataset.LoadTableSchema(schemaPath)
		if err != nil {
			return nil, err
		}
		return func(path string) error {
			table, err := dataset.ReadTable(path)
			if err != nil {
				return err
			}
			return schema.Validate(table)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported schema type %q", filepath.Ext(schemaPath))
	}
}
