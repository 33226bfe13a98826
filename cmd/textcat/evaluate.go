package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/textcat/internal/dataset"
	"github.com/samcharles93/textcat/internal/logger"
)

func evaluateCmd() *cli.Command {
	var (
		textColumn  string
		labelColumn string
		reportPath  string
	)

	return &cli.Command{
		Name:      "evaluate",
		Usage:     "Score the model on a labeled CSV, TSV or XLSX file",
		ArgsUsage: "<dataset>",
		Flags: append(commonModelFlags(),
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
			&cli.StringFlag{
				Name:        "report",
				Usage:       "also write the report as JSON",
				Destination: &reportPath,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: evaluate takes exactly one dataset path", 1)
			}
			table, err := dataset.ReadTable(cmd.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			schema := dataset.TableSchema{
				RequiredColumns: []string{textColumn, labelColumn},
				NonNullColumns:  []string{labelColumn},
			}
			if err := schema.Validate(table); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			_, loaded, err := loadPipeline(ctx, cmd)
			if err != nil {
				return err
			}
			labels := loaded.Pipeline.Labels()
			ids := dataset.LabelMap(labels)

			texts, _ := table.Values(textColumn)
			rawLabels, _ := table.Values(labelColumn)
			var (
				keep     []string
				expected []int
				skipped  int
			)
			for i, l := range rawLabels {
				id, ok := ids[l]
				if !ok {
					skipped++
					continue
				}
				keep = append(keep, texts[i])
				expected = append(expected, id)
			}
			if skipped > 0 {
				log.Warn("rows with unknown categories skipped", "count", skipped)
			}
			if len(keep) == 0 {
				return cli.Exit("error: no rows with a known category", 1)
			}

			var scored, predicted []int
			failed := 0
			for i, item := range loaded.Pipeline.PredictBatch(ctx, keep) {
				if item.Err != nil {
					failed++
					continue
				}
				scored = append(scored, expected[i])
				predicted = append(predicted, item.Prediction.Category)
			}
			if failed > 0 {
				log.Warn("predictions failed and were excluded", "count", failed)
			}

			report, err := dataset.NewReport(labels, scored, predicted)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			printReport(os.Stdout, report)
			if reportPath != "" {
				if err := writeJSONFile(reportPath, report); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				logWritten(ctx, "report", reportPath, report.Total)
			}
			return nil
		},
	}
}

func printReport(w io.Writer, r dataset.Report) {
	_, _ = fmt.Fprintf(w, "samples:  %d\n", r.Total)
	_, _ = fmt.Fprintf(w, "accuracy: %.4f\n", r.Accuracy)
	_, _ = fmt.Fprintf(w, "macro f1: %.4f\n\n", r.MacroF1)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "LABEL\tPRECISION\tRECALL\tF1\tSUPPORT")
	for _, c := range r.Classes {
		_, _ = fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	_ = tw.Flush()
}
