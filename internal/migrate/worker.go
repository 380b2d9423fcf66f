package migrate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/list-cutter/cutover/client"
	"github.com/list-cutter/cutover/internal/metrics"
	"github.com/list-cutter/cutover/internal/models"
)

// processRecord runs one claimed record through digest, upload, confirm
// and outcome recording. Errors returned here are state-store failures;
// transfer failures become recorded outcomes instead.
func (o *Orchestrator) processRecord(ctx context.Context, rec *models.FileRecord, log *logrus.Entry) error {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	start := time.Now()
	outcome := o.transferFile(ctx, rec)
	metrics.TransferDuration.Observe(time.Since(start).Seconds())

	status, err := o.store.RecordOutcome(ctx, rec.BatchID, rec.FileID, outcome, o.cfg.MaxRetries, o.cfg.RetryDelayBase)
	if err != nil {
		return fmt.Errorf("recording outcome for file %s: %w", rec.FileID, err)
	}

	if status == models.RecordPending {
		metrics.RetriesTotal.Inc()
	}

	// A completed record gets a second, independent probe before it is
	// promoted to verified. The confirm inside transferFile proved the
	// object landed; this one proves it is still readable afterwards.
	if status == models.RecordCompleted && outcome.DestChecksum != "" {
		if probe, perr := o.transfer.ConfirmAccessible(ctx, outcome.DestinationRef); perr == nil &&
			probe.Exists && o.sum.Verify(outcome.SourceChecksum, probe.Checksum) {
			if verr := o.store.MarkVerified(ctx, rec.BatchID, rec.FileID); verr != nil {
				return fmt.Errorf("marking file %s verified: %w", rec.FileID, verr)
			}
			status = models.RecordVerified
		}
	}

	metrics.FilesMigrated.WithLabelValues(string(status)).Inc()

	fields := logrus.Fields{"file_id": rec.FileID, "status": status, "attempts": rec.Attempts + 1}
	switch status {
	case models.RecordFailed:
		log.WithFields(fields).WithField("error", outcome.ErrorMessage).Error("file migration failed")
	case models.RecordPending:
		log.WithFields(fields).WithField("error", outcome.ErrorMessage).Warn("file migration requeued")
	default:
		log.WithFields(fields).Info("file migrated")
	}

	o.notifyProgress(ctx, rec.BatchID)

	return nil
}

// transferFile performs one migration attempt and reduces it to an Outcome.
func (o *Orchestrator) transferFile(ctx context.Context, rec *models.FileRecord) models.Outcome {
	entity, err := o.store.GetFile(ctx, rec.FileID)
	if err != nil {
		return failureOutcome(&models.PermanentError{Op: "load file " + rec.FileID, Err: err})
	}

	info, err := os.Stat(rec.SourcePath)
	if err != nil {
		// A vanished or unreadable source file cannot succeed on retry.
		return failureOutcome(&models.PermanentError{Op: "stat " + rec.SourcePath, Err: err})
	}

	sourceSum, err := o.sum.DigestFile(rec.SourcePath)
	if err != nil {
		return failureOutcome(&models.PermanentError{Op: "digest " + rec.SourcePath, Err: err})
	}

	f, err := os.Open(rec.SourcePath)
	if err != nil {
		return failureOutcome(&models.PermanentError{Op: "open " + rec.SourcePath, Err: err})
	}
	defer f.Close() //nolint:errcheck

	ref, err := o.transfer.Upload(ctx, rec.FileID, f, client.UploadMetadata{
		FileName: entity.FileName,
		UserID:   entity.UserID,
		Checksum: sourceSum,
		Size:     info.Size(),
	})
	if err != nil {
		return failureOutcome(err)
	}

	metrics.BytesTransferred.Add(float64(info.Size()))

	probe, err := o.transfer.ConfirmAccessible(ctx, ref)
	if err != nil {
		return failureOutcome(err)
	}

	if !probe.Exists {
		return failureOutcome(&models.TransientError{
			Op:  "confirm " + ref,
			Err: fmt.Errorf("uploaded object not found at destination"),
		})
	}

	if probe.Checksum != "" && !o.sum.Verify(sourceSum, probe.Checksum) {
		metrics.ChecksumMismatches.Inc()

		return failureOutcome(&models.TransientError{
			Op:  "confirm " + ref,
			Err: fmt.Errorf("checksum mismatch: source %s, destination %s", sourceSum, probe.Checksum),
		})
	}

	return models.Outcome{
		Kind:           models.OutcomeCompleted,
		DestinationRef: ref,
		SourceChecksum: sourceSum,
		DestChecksum:   probe.Checksum,
	}
}

// failureOutcome maps a classified error to a transient or permanent
// failure outcome. Unclassified errors are treated as permanent so a
// programming mistake cannot retry forever.
func failureOutcome(err error) models.Outcome {
	kind := models.OutcomePermanentFailure
	if models.IsTransient(err) {
		kind = models.OutcomeTransientFailure
	}

	return models.Outcome{Kind: kind, ErrorMessage: err.Error()}
}

// notifyProgress feeds the progress callback; progress display is
// cosmetic, so store errors here are swallowed.
func (o *Orchestrator) notifyProgress(ctx context.Context, batchID string) {
	if o.onProgress == nil {
		return
	}

	progress, err := o.store.Progress(ctx, batchID)
	if err != nil {
		return
	}

	counts := progress.StatusCounts
	done := counts[models.RecordCompleted] + counts[models.RecordVerified] + counts[models.RecordFailed]
	o.onProgress(done, progress.Batch.TotalFiles)
}
