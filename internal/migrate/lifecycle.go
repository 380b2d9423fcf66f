package migrate

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/list-cutter/cutover/internal/models"
)

// ResumeBatch restarts an interrupted batch. Records stuck in processing
// from a crashed run are requeued without burning an attempt, then the
// batch runs to completion like any other.
func (o *Orchestrator) ResumeBatch(ctx context.Context, batchID string) (*models.Summary, error) {
	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if batch.Status.Terminal() {
		return nil, fmt.Errorf("batch %s is %s and cannot be resumed", batchID, batch.Status)
	}

	requeued, err := o.store.ResetStuckProcessing(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("requeueing stuck records: %w", err)
	}

	if requeued > 0 {
		o.log.WithFields(logrus.Fields{"batch_id": batchID, "requeued": requeued}).
			Info("requeued records left processing by a previous run")
	}

	return o.RunBatch(ctx, batchID, false)
}

// RollbackBatch undoes a finished batch: destination objects are deleted
// best-effort, destination refs and source-table migration columns are
// cleared, and the batch lands in rolled_back. A batch still processing
// is refused; rollback and workers must not race.
func (o *Orchestrator) RollbackBatch(ctx context.Context, batchID string) (*models.RollbackResult, error) {
	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if batch.Status == models.BatchProcessing {
		return nil, models.ErrBatchProcessing
	}

	if batch.Status == models.BatchRolledBack {
		return &models.RollbackResult{BatchID: batchID}, nil
	}

	records, err := o.store.ListRecordsWithRefs(ctx, batchID)
	if err != nil {
		return nil, err
	}

	result := &models.RollbackResult{BatchID: batchID}
	for _, rec := range records {
		if rec.DestinationRef == nil || *rec.DestinationRef == "" {
			continue
		}

		if err := o.transfer.Delete(ctx, *rec.DestinationRef); err != nil {
			result.DeleteFailures++
			o.log.WithFields(logrus.Fields{
				"batch_id": batchID,
				"file_id":  rec.FileID,
				"ref":      *rec.DestinationRef,
				"error":    err.Error(),
			}).Warn("rollback: destination delete failed, object may be orphaned")

			continue
		}

		result.Deleted++
	}

	cleared, err := o.store.DeleteDestinationRefs(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("clearing destination refs: %w", err)
	}
	result.RefsCleared = cleared

	if err := o.store.MarkRolledBack(ctx, batchID); err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{
		"batch_id":        batchID,
		"deleted":         result.Deleted,
		"delete_failures": result.DeleteFailures,
		"refs_cleared":    result.RefsCleared,
	}).Info("batch rolled back")

	return result, nil
}
