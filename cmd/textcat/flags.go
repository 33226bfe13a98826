package main

import "github.com/urfave/cli/v3"

var (
	configPath      string
	checkpointPath  string
	modelConfigPath string
	tokenizerPath   string
	categories      []string
	maxLength       int64
	head            string
	workers         int64
	logLevel        string
	logFormat       string
	debug           bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "checkpoint",
			Aliases:     []string{"m"},
			Usage:       "path to model.safetensors",
			Destination: &checkpointPath,
		},
		&cli.StringFlag{
			Name:        "model-config",
			Usage:       "path to the model config.json",
			Destination: &modelConfigPath,
		},
		&cli.StringFlag{
			Name:        "tokenizer",
			Usage:       "path to tokenizer.json or vocab.txt",
			Destination: &tokenizerPath,
		},
		&cli.StringSliceFlag{
			Name:        "category",
			Aliases:     []string{"c"},
			Usage:       "category label, in classifier output order (repeatable)",
			Destination: &categories,
		},
		&cli.Int64Flag{
			Name:        "max-length",
			Usage:       "tokenizer sequence length",
			Value:       512,
			Destination: &maxLength,
		},
		&cli.StringFlag{
			Name:        "head",
			Usage:       "classification head (cls, pooled); empty detects from tensor names",
			Destination: &head,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Aliases:     []string{"j"},
			Usage:       "concurrent batch items (0 = GOMAXPROCS)",
			Destination: &workers,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
