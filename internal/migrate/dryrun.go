package migrate

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/list-cutter/cutover/internal/models"
)

// dryRun walks every record in the batch and reports what a real run
// would attempt. Source files are statted and digested, the destination
// gets a health probe only, and no state is mutated.
func (o *Orchestrator) dryRun(ctx context.Context, batch *models.Batch) (*models.Summary, error) {
	records, err := o.store.ListRecords(ctx, batch.ID, "")
	if err != nil {
		return nil, err
	}

	reachable := o.transfer.HealthCheck(ctx)

	summary := &models.Summary{
		BatchID: batch.ID,
		Status:  models.SummaryCompleted,
		Total:   len(records),
		DryRun:  true,
	}

	for _, rec := range records {
		if rec.Status != models.RecordPending {
			summary.Skipped++

			continue
		}

		if err := o.inspectSource(rec.SourcePath); err != nil {
			summary.Failed++
			o.log.WithFields(logrus.Fields{
				"batch_id": batch.ID,
				"file_id":  rec.FileID,
				"error":    err.Error(),
			}).Warn("dry run: file would fail")

			continue
		}

		summary.Succeeded++
	}

	if !reachable {
		// Every would-be upload fails against an unreachable destination.
		summary.Failed += summary.Succeeded
		summary.Succeeded = 0
	}

	switch {
	case summary.Failed > 0 && summary.Succeeded > 0:
		summary.Status = models.SummaryPartial
	case summary.Failed > 0:
		summary.Status = models.SummaryFailed
	}

	o.log.WithFields(logrus.Fields{
		"batch_id":  batch.ID,
		"would_ok":  summary.Succeeded,
		"would_err": summary.Failed,
		"skipped":   summary.Skipped,
		"api_up":    reachable,
	}).Info("dry run finished")

	return summary, nil
}

// inspectSource verifies the source file is readable and digestible and
// fits the transfer size ceiling.
func (o *Orchestrator) inspectSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.Size() > o.cfg.MaxFileSize {
		return fmt.Errorf("file size %d exceeds maximum %d", info.Size(), o.cfg.MaxFileSize)
	}

	if _, err := o.sum.DigestFile(path); err != nil {
		return err
	}

	return nil
}
