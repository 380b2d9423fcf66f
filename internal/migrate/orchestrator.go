// Package migrate contains the batch orchestrator: it plans batches,
// drives the per-file state machine through the state store, and exposes
// resume and rollback.
//
// Per-file failures land on the file's migration record and never escape
// RunBatch; only state-store failures that make continuing meaningless
// abort a run.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/list-cutter/cutover/internal/checksum"
	"github.com/list-cutter/cutover/internal/config"
	"github.com/list-cutter/cutover/internal/models"
)

// claimPollInterval is how long an idle worker waits before re-checking
// for claimable records (records backing off, or held by other workers).
// Variable so tests can shrink it.
var claimPollInterval = time.Second

// Orchestrator plans and executes migration batches.
type Orchestrator struct {
	cfg      config.Config
	store    StateStore
	transfer Transfer
	sum      *checksum.Engine
	log      *logrus.Logger

	// onProgress, when set, receives (terminalRecords, totalRecords)
	// after every file outcome. Used by the CLI progress bar.
	onProgress func(done, total int)
}

// New creates an Orchestrator. The Config is the single source of every
// tunable; nothing inside reads the environment.
func New(cfg config.Config, st StateStore, tr Transfer, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		transfer: tr,
		sum:      checksum.New(cfg.ChunkSize),
		log:      log,
	}
}

// OnProgress registers a progress callback invoked after each file outcome.
func (o *Orchestrator) OnProgress(fn func(done, total int)) {
	o.onProgress = fn
}

// PlanBatch selects up to batchSize eligible files and creates one batch
// with one pending record per file. Files already attached to an active
// batch reject the call with ConflictError.
func (o *Orchestrator) PlanBatch(ctx context.Context, batchSize int) (string, error) {
	if batchSize <= 0 {
		batchSize = o.cfg.BatchSize
	}

	eligible, err := o.store.ListEligible(ctx, batchSize)
	if err != nil {
		return "", fmt.Errorf("selecting eligible files: %w", err)
	}

	if len(eligible) == 0 {
		return "", models.ErrNothingToMigrate
	}

	candidates := make([]models.Candidate, 0, len(eligible))
	for _, f := range eligible {
		c := models.Candidate{FileID: f.FileID, SourcePath: f.FilePath}
		// Size is advisory at planning time; a file deleted between plan
		// and run surfaces as a failed record, not a planning error.
		if st, err := os.Stat(f.FilePath); err == nil {
			c.FileSize = st.Size()
		}
		candidates = append(candidates, c)
	}

	batchID, err := o.store.CreateBatch(ctx, candidates)
	if err != nil {
		return "", err
	}

	o.log.WithFields(logrus.Fields{"batch_id": batchID, "files": len(candidates)}).Info("batch planned")

	return batchID, nil
}

// RunBatch drives a batch to a terminal state and returns its summary.
// In dry-run mode every step up to and excluding the upload executes and
// nothing is mutated beyond read-only probes.
func (o *Orchestrator) RunBatch(ctx context.Context, batchID string, dryRun bool) (*models.Summary, error) {
	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if batch.Status == models.BatchCompleted || batch.Status == models.BatchRolledBack {
		return nil, fmt.Errorf("batch %s is already %s", batchID, batch.Status)
	}

	if dryRun {
		return o.dryRun(ctx, batch)
	}

	// Destination outage blocks new work but never fails a running batch;
	// workers already past this gate classify outages per file.
	if !o.transfer.HealthCheck(ctx) {
		return nil, fmt.Errorf("destination health check failed, refusing to start batch %s", batchID)
	}

	if err := o.store.StartBatch(ctx, batchID); err != nil {
		return nil, err
	}

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			return o.runWorker(gctx, batchID, worker)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	// The summary must still be readable after a cancellation.
	summary, err := o.summarize(context.WithoutCancel(ctx), batchID, dryRun)
	if err != nil {
		return nil, err
	}
	summary.Duration = time.Since(start)

	o.log.WithFields(logrus.Fields{
		"batch_id": batchID,
		"status":   summary.Status,
		"ok":       summary.Succeeded,
		"failed":   summary.Failed,
		"skipped":  summary.Skipped,
	}).Info("batch finished")

	return summary, nil
}

// runWorker claims and processes records until the batch has no open work.
// Cancellation is honored between claims only; an in-flight file always
// completes so no record is left with an ambiguous destination state.
func (o *Orchestrator) runWorker(ctx context.Context, batchID string, worker int) error {
	log := o.log.WithFields(logrus.Fields{"batch_id": batchID, "worker": worker})

	for {
		if err := ctx.Err(); err != nil {
			log.Info("worker stopping on cancellation")

			return err
		}

		rec, err := o.store.ClaimNextPending(ctx, batchID)
		if err != nil {
			return fmt.Errorf("worker %d claiming record: %w", worker, err)
		}

		if rec == nil {
			done, err := o.batchDrained(ctx, batchID)
			if err != nil {
				return err
			}

			if done {
				return nil
			}

			// Records are backing off or held by other workers.
			select {
			case <-ctx.Done():
			case <-time.After(claimPollInterval):
			}

			continue
		}

		// The claim is committed; finish the file even if the run is
		// being cancelled.
		if err := o.processRecord(context.WithoutCancel(ctx), rec, log); err != nil {
			return err
		}
	}
}

// batchDrained reports whether no pending or processing records remain.
func (o *Orchestrator) batchDrained(ctx context.Context, batchID string) (bool, error) {
	progress, err := o.store.Progress(ctx, batchID)
	if err != nil {
		return false, fmt.Errorf("reading batch progress: %w", err)
	}

	open := progress.StatusCounts[models.RecordPending] + progress.StatusCounts[models.RecordProcessing]

	return open == 0, nil
}

// summarize builds the RunBatch summary from an atomic progress read.
func (o *Orchestrator) summarize(ctx context.Context, batchID string, dryRun bool) (*models.Summary, error) {
	progress, err := o.store.Progress(ctx, batchID)
	if err != nil {
		return nil, err
	}

	counts := progress.StatusCounts
	succeeded := counts[models.RecordCompleted] + counts[models.RecordVerified]
	failed := counts[models.RecordFailed]
	total := progress.Batch.TotalFiles
	skipped := total - succeeded - failed - counts[models.RecordPending] - counts[models.RecordProcessing]
	if skipped < 0 {
		skipped = 0
	}

	status := models.SummaryCompleted
	switch {
	case failed > 0 && succeeded > 0:
		status = models.SummaryPartial
	case failed > 0:
		status = models.SummaryFailed
	}

	return &models.Summary{
		BatchID:   batchID,
		Status:    status,
		Total:     total,
		Succeeded: succeeded,
		Failed:    failed,
		Skipped:   skipped,
		DryRun:    dryRun,
	}, nil
}
