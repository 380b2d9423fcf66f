package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/list-cutter/cutover/internal/models"
)

func newBatchesCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List migration batches",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			p, closePipeline, err := openPipeline(ctx)
			if err != nil {
				fatal("setup", err)
			}
			defer closePipeline()

			batches, err := p.stores.ListBatches(ctx, models.BatchStatus(status), limit)
			if err != nil {
				fatal("list batches", err)
			}

			if flagFmt == "table" {
				rows := make([][]string, 0, len(batches))
				for _, b := range batches {
					rows = append(rows, []string{
						b.ID,
						string(b.Status),
						strconv.Itoa(b.TotalFiles),
						strconv.Itoa(b.CompletedFiles),
						strconv.Itoa(b.FailedFiles),
						timeCell(&b.CreatedAt),
					})
				}
				formatTable([]string{"BATCH", "STATUS", "TOTAL", "COMPLETED", "FAILED", "CREATED"}, rows)

				return
			}

			quiet := ""
			if len(batches) > 0 {
				quiet = batches[0].ID
			}
			output(map[string]any{"batches": batches}, quiet)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by batch status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum batches to return (0 = all)")

	return cmd
}

func newStatusCmd() *cobra.Command {
	var showFiles bool

	cmd := &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show one batch's progress",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			p, closePipeline, err := openPipeline(ctx)
			if err != nil {
				fatal("setup", err)
			}
			defer closePipeline()

			progress, err := p.stores.Progress(ctx, args[0])
			if err != nil {
				fatal("read batch", err)
			}

			if flagFmt == "table" {
				printProgressTable(progress)
			} else {
				output(progress, string(progress.Batch.Status))
			}

			if showFiles {
				printFailedFiles(ctx, p, args[0])
			}
		},
	}

	cmd.Flags().BoolVar(&showFiles, "files", false, "Also list failed files with their errors")

	return cmd
}

func printProgressTable(progress *models.BatchProgress) {
	b := progress.Batch
	formatTable(
		[]string{"BATCH", "STATUS", "TOTAL", "COMPLETED", "VERIFIED", "FAILED", "STARTED"},
		[][]string{{
			b.ID,
			string(b.Status),
			strconv.Itoa(b.TotalFiles),
			strconv.Itoa(progress.StatusCounts[models.RecordCompleted]),
			strconv.Itoa(progress.StatusCounts[models.RecordVerified]),
			strconv.Itoa(progress.StatusCounts[models.RecordFailed]),
			timeCell(b.StartedAt),
		}},
	)
}

func printFailedFiles(ctx context.Context, p *pipeline, batchID string) {
	records, err := p.stores.ListRecords(ctx, batchID, models.RecordFailed)
	if err != nil {
		fatal("list failed records", err)
	}

	if len(records) == 0 {
		fmt.Println("\nNo failed files.")

		return
	}

	fmt.Println()
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		msg := ""
		if r.ErrorMessage != nil {
			msg = *r.ErrorMessage
		}
		rows = append(rows, []string{r.FileID, sizeCell(r.FileSize), strconv.Itoa(r.Attempts), msg})
	}
	formatTable([]string{"FILE", "SIZE", "ATTEMPTS", "ERROR"}, rows)
}
