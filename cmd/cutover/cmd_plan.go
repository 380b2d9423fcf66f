package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/list-cutter/cutover/internal/models"
)

func newPlanCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Select eligible files and create a new migration batch",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			p, closePipeline, err := openPipeline(ctx)
			if err != nil {
				fatal("setup", err)
			}
			defer closePipeline()

			batchID, err := p.orch.PlanBatch(ctx, batchSize)
			if err != nil {
				if errors.Is(err, models.ErrNothingToMigrate) {
					fmt.Println("No eligible files to migrate.")

					return
				}
				fatal("plan batch", err)
			}

			batch, err := p.stores.GetBatch(ctx, batchID)
			if err != nil {
				fatal("read batch", err)
			}

			output(batch, batchID)
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Files per batch (default from config)")

	return cmd
}
