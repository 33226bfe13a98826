package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/textcat/internal/inference"
)

// predictLine is one JSON line of predict output.
type predictLine struct {
	Index         int       `json:"index"`
	Text          string    `json:"text"`
	Category      int       `json:"category"`
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	Error         string    `json:"error,omitempty"`
}

func predictCmd() *cli.Command {
	var (
		inputPath  string
		outputPath string
		showProbs  bool
	)

	return &cli.Command{
		Name:      "predict",
		Usage:     "Categorize texts given as arguments or one per line in a file",
		ArgsUsage: "[text...]",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "read texts one per line (- for stdin)",
				Destination: &inputPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "write JSON lines here (default stdout)",
				Destination: &outputPath,
			},
			&cli.BoolFlag{
				Name:        "probs",
				Usage:       "include the full probability vector",
				Destination: &showProbs,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			texts := cmd.Args().Slice()
			if inputPath != "" {
				lines, err := readLines(inputPath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				texts = append(texts, lines...)
			}
			if len(texts) == 0 {
				return cli.Exit("error: no input texts (pass arguments or --file)", 1)
			}

			_, loaded, err := loadPipeline(ctx, cmd)
			if err != nil {
				return err
			}

			out, closeOut, err := createOutput(outputPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer closeOut()

			items := loaded.Pipeline.PredictBatch(ctx, texts)
			failed, err := writePredictions(out, texts, items, showProbs)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			logWritten(ctx, "predictions", outputPath, len(items))
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("error: %d of %d texts failed", failed, len(texts)), 1)
			}
			return nil
		},
	}
}

func writePredictions(w io.Writer, texts []string, items []inference.BatchItem, probs bool) (int, error) {
	enc := json.NewEncoder(w)
	failed := 0
	for i, item := range items {
		line := predictLine{Index: i, Text: texts[i]}
		if item.Err != nil {
			failed++
			line.Category = -1
			line.Error = item.Err.Error()
		} else {
			line.Category = item.Prediction.Category
			line.Label = item.Prediction.Label
			line.Confidence = item.Prediction.Confidence
			if probs {
				line.Probabilities = item.Prediction.Probabilities
			}
		}
		if err := enc.Encode(line); err != nil {
			return failed, err
		}
	}
	return failed, nil
}

func readLines(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.New("input has no non-blank lines")
	}
	return lines, nil
}
