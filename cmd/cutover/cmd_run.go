package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/list-cutter/cutover/internal/monitor"
)

func newRunCmd() *cobra.Command {
	var (
		dryRun      bool
		workers     int
		monitorAddr string
	)

	cmd := &cobra.Command{
		Use:   "run <batch-id>",
		Short: "Execute a planned batch",
		Long: `Execute a planned batch: digest, upload, and verify every pending file.

Interrupting with Ctrl-C stops workers between files; in-flight transfers
finish so no record is left half-done. Use "cutover resume" afterwards.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, closePipeline, err := openPipeline(ctx)
			if err != nil {
				fatal("setup", err)
			}
			defer closePipeline()

			if workers > 0 {
				p.cfg.Workers = workers
				p.orch = rebuildOrchestrator(p)
			}

			if monitorAddr != "" {
				srv := monitor.New(monitorAddr, p.stores, p.log)
				go func() {
					if err := srv.Start(); err != nil {
						p.log.WithError(err).Error("monitor server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx) //nolint:errcheck
				}()
			}

			if !dryRun && flagFmt != "quiet" {
				attachProgressBar(p)
			}

			summary, err := p.orch.RunBatch(ctx, args[0], dryRun)
			if err != nil {
				fatal("run batch", err)
			}

			output(summary, string(summary.Status))
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Analyze the batch without transferring anything")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent transfer workers (default from config)")
	cmd.Flags().StringVar(&monitorAddr, "monitor-addr", "", "Serve progress/metrics HTTP on this address during the run")

	return cmd
}

// attachProgressBar wires a terminal progress bar to the orchestrator.
func attachProgressBar(p *pipeline) {
	var bar *progressbar.ProgressBar

	p.orch.OnProgress(func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("migrating"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		bar.Set(done) //nolint:errcheck
	})
}
