package main

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/textcat/internal/logger"
	"github.com/samcharles93/textcat/internal/version"
)

func benchmarkCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		batchSize  int64
		text       string
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       3,
			Destination: &benchRuns,
		},
		&cli.Int64Flag{
			Name:        "batch",
			Aliases:     []string{"b"},
			Usage:       "texts per batch",
			Value:       32,
			Destination: &batchSize,
		},
		&cli.StringFlag{
			Name:        "text",
			Aliases:     []string{"t"},
			Usage:       "text to categorize",
			Value:       "The company reported record quarterly revenue as its stock price climbed.",
			Destination: &text,
		},
	)

	return &cli.Command{
		Name:  "benchmark",
		Usage: "Measure single and batch prediction throughput",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if benchRuns < 1 || batchSize < 1 {
				return cli.Exit("error: --runs and --batch must be positive", 1)
			}

			log.Info("loading model for benchmark")
			loadStart := time.Now()
			_, loaded, err := loadPipeline(ctx, cmd)
			if err != nil {
				return err
			}
			loadDuration := time.Since(loadStart)
			p := loaded.Pipeline

			fmt.Println("=== textcat benchmark ===")
			fmt.Printf("Model:      %s (%d params)\n", p.Version(), loaded.Classifier.NumParams())
			fmt.Printf("Layers:     %d x %d hidden\n", loaded.Classifier.Config.NumHiddenLayers, loaded.Classifier.HiddenSize())
			fmt.Printf("Max length: %d\n", p.MaxLength())
			fmt.Printf("CPUs:       %d\n", runtime.NumCPU())
			fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
			fmt.Printf("Workers:    %d\n", p.Workers())
			if feats := version.CPUFeatures(); len(feats) > 0 {
				fmt.Printf("CPU feats:  %s\n", strings.Join(feats, " "))
			}
			fmt.Printf("Load:       %s\n", loadDuration.Round(time.Millisecond))
			fmt.Printf("Batch:      %d texts\n", batchSize)
			fmt.Println()

			batch := slices.Repeat([]string{text}, int(batchSize))
			for i := range int(warmupRuns) {
				log.Info("warmup run", "run", i+1)
				if _, err := p.Predict(ctx, text); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			type runResult struct {
				Single time.Duration
				Batch  time.Duration
			}
			results := make([]runResult, 0, benchRuns)
			for i := range int(benchRuns) {
				log.Info("benchmark run", "run", i+1)
				start := time.Now()
				if _, err := p.Predict(ctx, text); err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				single := time.Since(start)

				start = time.Now()
				for j, item := range p.PredictBatch(ctx, batch) {
					if item.Err != nil {
						return cli.Exit(fmt.Sprintf("error: benchmark run %d item %d: %v", i+1, j, item.Err), 1)
					}
				}
				results = append(results, runResult{Single: single, Batch: time.Since(start)})
			}

			fmt.Println("=== Results ===")
			fmt.Printf("%-6s %12s %12s %12s\n", "Run", "Single", "Batch", "Texts/s")
			var sumSingle, sumBatch time.Duration
			for i, r := range results {
				fmt.Printf("%-6d %12s %12s %12.1f\n", i+1,
					r.Single.Round(time.Microsecond), r.Batch.Round(time.Microsecond), throughput(batchSize, r.Batch))
				sumSingle += r.Single
				sumBatch += r.Batch
			}
			n := time.Duration(len(results))
			fmt.Printf("\n%-6s %12s %12s %12.1f\n", "Avg",
				(sumSingle / n).Round(time.Microsecond), (sumBatch / n).Round(time.Microsecond), throughput(batchSize, sumBatch/n))

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))
			return nil
		},
	}
}

func throughput(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
