package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <batch-id>",
		Short: "Resume an interrupted batch",
		Long: `Resume an interrupted batch: records stuck in processing from a crashed
or cancelled run are requeued, then the batch runs to completion.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, closePipeline, err := openPipeline(ctx)
			if err != nil {
				fatal("setup", err)
			}
			defer closePipeline()

			if flagFmt != "quiet" {
				attachProgressBar(p)
			}

			summary, err := p.orch.ResumeBatch(ctx, args[0])
			if err != nil {
				fatal("resume batch", err)
			}

			output(summary, string(summary.Status))
		},
	}
}
