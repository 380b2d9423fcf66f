package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/list-cutter/cutover/internal/lineage"
)

func newLineageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Export file lineage edges from the graph store",
	}
	cmd.AddCommand(lineageExportCmd())

	return cmd
}

func lineageExportCmd() *cobra.Command {
	var csvPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export lineage edges into the destination database",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			cfg, err := resolveConfig()
			if err != nil {
				fatal("config", err)
			}
			if cfg.GraphURI == "" {
				fatal("config", fmt.Errorf("GRAPH_URI is required for lineage export"))
			}

			log := newLogger(cfg)

			src, err := lineage.NewGraphSource(cfg.GraphURI, cfg.GraphUser, cfg.GraphPass.Value(), log)
			if err != nil {
				fatal("graph source", err)
			}
			defer src.Close(ctx) //nolint:errcheck

			writer, err := lineage.NewWriter(ctx, cfg.LineagePath)
			if err != nil {
				fatal("lineage destination", err)
			}
			defer writer.Close() //nolint:errcheck

			report, err := lineage.Export(ctx, src, writer, log)
			if err != nil {
				fatal("export lineage", err)
			}

			if csvPath != "" {
				if err := writeLineageCSV(ctx, src, csvPath); err != nil {
					fatal("write csv", err)
				}
			}

			output(report, fmt.Sprintf("%d", report.Written))
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "Also write the edges to a CSV file")

	return cmd
}

func writeLineageCSV(ctx context.Context, src lineage.EdgeSource, path string) error {
	edges, _, err := src.Edges(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	return lineage.WriteCSV(f, edges)
}
