package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/list-cutter/cutover/internal/checksum"
	"github.com/list-cutter/cutover/internal/validate"
)

func newValidateCmd() *cobra.Command {
	var (
		batchIDs  []string
		reportFmt string
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Independently verify migrated files against source and destination",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			p, closePipeline, err := openPipeline(ctx)
			if err != nil {
				fatal("setup", err)
			}
			defer closePipeline()

			validator := validate.New(p.stores, p.api, checksum.New(p.cfg.ChunkSize), p.log)

			report, err := validator.ValidateAll(ctx, batchIDs...)
			if err != nil {
				fatal("validate", err)
			}

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					fatal("create report file", err)
				}
				defer f.Close() //nolint:errcheck
				out = f
			}

			switch reportFmt {
			case "text":
				err = report.RenderText(out)
			default:
				err = report.RenderJSON(out)
			}
			if err != nil {
				fatal("render report", err)
			}

			// Reconciliation failures should fail CI and cron wrappers.
			if report.FailedFiles > 0 {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringSliceVar(&batchIDs, "batch", nil, "Validate only these batch IDs (repeatable)")
	cmd.Flags().StringVar(&reportFmt, "report-format", "json", "Report format: json|text")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the report to a file instead of stdout")

	return cmd
}
