package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/textcat/internal/model"
	"github.com/samcharles93/textcat/internal/safetensors"
)

func inspectCmd() *cli.Command {
	var (
		showTensors  bool
		showMetadata bool
		tensorFilter string
		tensorLimit  int64
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a safetensors checkpoint and its model config",
		Flags: append(commonModelFlags(),
			&cli.BoolFlag{Name: "tensors", Usage: "list tensors", Destination: &showTensors},
			&cli.BoolFlag{Name: "metadata", Usage: "print safetensors metadata", Destination: &showMetadata},
			&cli.StringFlag{Name: "filter", Usage: "only list tensors containing this substring", Destination: &tensorFilter},
			&cli.Int64Flag{Name: "limit", Usage: "max tensors to list (0 = all)", Destination: &tensorLimit},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if cfg.Model.Checkpoint == "" {
				return cli.Exit("error: no checkpoint (set model.checkpoint or pass --checkpoint)", 1)
			}
			st, err := safetensors.Open(cfg.Model.Checkpoint)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			names := st.Names()
			var total int
			for _, n := range names {
				total += st.Tensors[n].NumElements()
			}
			fmt.Printf("checkpoint: %s\n", cfg.Model.Checkpoint)
			fmt.Printf("tensors:    %d\n", len(names))
			fmt.Printf("elements:   %d\n", total)

			if cfg.Model.Config != "" {
				mc, err := model.LoadConfig(cfg.Model.Config)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				fmt.Printf("model type: %s\n", mc.ModelType)
				fmt.Printf("hidden:     %d\n", mc.HiddenSize)
				fmt.Printf("layers:     %d\n", mc.NumHiddenLayers)
				fmt.Printf("heads:      %d\n", mc.NumAttentionHeads)
				fmt.Printf("positions:  %d\n", mc.MaxPositionEmbeddings)
				fmt.Printf("vocab:      %d\n", mc.VocabSize)
				if labels := mc.Labels(); len(labels) > 0 {
					fmt.Printf("labels:     %s\n", strings.Join(labels, ", "))
				}
				if len(cfg.Categories) > 0 {
					clf, err := model.Load(cfg.Model.Checkpoint, cfg.Model.Config, len(cfg.Categories), headOption(cfg.Model.Head)...)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: %v", err), 1)
					}
					fmt.Printf("head:       %s\n", clf.Head)
					fmt.Printf("params:     %d\n", clf.NumParams())
				}
			}

			if showMetadata && len(st.Metadata) > 0 {
				fmt.Println("\nmetadata:")
				for _, k := range slices.Sorted(maps.Keys(st.Metadata)) {
					fmt.Printf("  %s = %s\n", k, st.Metadata[k])
				}
			}
			if showTensors {
				fmt.Println()
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "NAME\tDTYPE\tSHAPE")
				shown := 0
				for _, n := range names {
					if tensorFilter != "" && !strings.Contains(n, tensorFilter) {
						continue
					}
					if tensorLimit > 0 && int64(shown) >= tensorLimit {
						break
					}
					info := st.Tensors[n]
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%v\n", n, info.DType, info.Shape)
					shown++
				}
				_ = tw.Flush()
			}
			return nil
		},
	}
}

func headOption(h string) []model.LoadOption {
	if h == "" {
		return nil
	}
	return []model.LoadOption{model.WithHead(model.HeadKind(h))}
}
