package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/textcat/internal/config"
	"github.com/samcharles93/textcat/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:  "textcat",
		Usage: "Text categorization with BERT sequence classifiers",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to config.yaml (default: $XDG_CONFIG_HOME/textcat/config.yaml)",
				Sources:     cli.EnvVars("TEXTCAT_CONFIG"),
				Destination: &configPath,
			},
		}, loggingFlags()...),
		Before: setupLogger,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			serveCmd(),
			predictCmd(),
			evaluateCmd(),
			validateCmd(),
			prepareCmd(),
			featuresCmd(),
			tokenCmd(),
			toyCmd(),
			inspectCmd(),
			benchmarkCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger installs the root logger. Flags win over the config file's
// log section; a config file that fails to load is reported later by the
// commands that need it.
func setupLogger(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level, format := logLevel, logFormat
	if cfg, err := config.Load(configPath); err == nil {
		if !cmd.IsSet("log-level") && cfg.Log.Level != "" {
			level = cfg.Log.Level
		}
		if !cmd.IsSet("log-format") && cfg.Log.Format != "" {
			format = cfg.Log.Format
		}
	}
	if debug {
		level = "debug"
	}
	log, err := logger.ForFormat(os.Stderr, format, level)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 1)
	}
	return logger.WithContext(ctx, log), nil
}
