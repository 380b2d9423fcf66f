package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/list-cutter/cutover/internal/models"
)

// RecordStore handles per-file migration records and the batch rollup
// that follows every outcome.
type RecordStore struct {
	Base
}

// NewRecordStore creates a RecordStore.
func NewRecordStore(base Base) *RecordStore {
	return &RecordStore{Base: base}
}

// ClaimNextPending atomically selects one claimable pending record and
// marks it processing. The claim is a single conditional update guarded
// by FOR UPDATE SKIP LOCKED, so two concurrent workers can never claim
// the same record. Returns (nil, nil) when nothing is claimable right now
// (which includes records still waiting out their backoff).
func (s *RecordStore) ClaimNextPending(ctx context.Context, batchID string) (*models.FileRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx,
		`UPDATE file_migration_records
		 SET status = 'processing', started_at = CURRENT_TIMESTAMP
		 WHERE id = (
		     SELECT id FROM file_migration_records
		     WHERE batch_id = $1 AND status = 'pending'
		       AND (next_attempt_at IS NULL OR next_attempt_at <= CURRENT_TIMESTAMP)
		     ORDER BY id
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+recordColumns,
		batchID)

	r, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("claiming pending record: %w", err)
	}

	return r, nil
}

// RecordOutcome applies one attempt's result to a record and rolls the
// batch status up from an atomic aggregate over all its records. Every
// outcome counts as one attempt. Transient failures requeue the record
// with exponential backoff until attempts exceed maxRetries; permanent
// failures and exhausted retries are terminal. Returns the record's
// resulting status.
func (s *RecordStore) RecordOutcome(
	ctx context.Context,
	batchID, fileID string,
	out models.Outcome,
	maxRetries int,
	retryBase time.Duration,
) (models.RecordStatus, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("recording outcome: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	var attempts int
	err = tx.QueryRow(ctx,
		`SELECT attempts FROM file_migration_records
		 WHERE batch_id = $1 AND file_id = $2
		 FOR UPDATE`,
		batchID, fileID).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrRecordNotFound
		}

		return "", fmt.Errorf("locking record: %w", err)
	}

	attempts++

	status, err := applyOutcome(ctx, tx, batchID, fileID, out, attempts, maxRetries, retryBase)
	if err != nil {
		return "", err
	}

	if err := rollupBatch(ctx, tx, batchID); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing outcome: %w", err)
	}

	return status, nil
}

// applyOutcome writes the record transition for one attempt.
func applyOutcome(
	ctx context.Context,
	tx pgx.Tx,
	batchID, fileID string,
	out models.Outcome,
	attempts, maxRetries int,
	retryBase time.Duration,
) (models.RecordStatus, error) {
	switch out.Kind {
	case models.OutcomeCompleted:
		_, err := tx.Exec(ctx,
			`UPDATE file_migration_records
			 SET status = 'completed', attempts = $3, error_message = NULL,
			     destination_ref = $4, source_checksum = $5, dest_checksum = $6,
			     next_attempt_at = NULL, completed_at = CURRENT_TIMESTAMP
			 WHERE batch_id = $1 AND file_id = $2`,
			batchID, fileID, attempts, out.DestinationRef, out.SourceChecksum, out.DestChecksum)
		if err != nil {
			return "", fmt.Errorf("marking record completed: %w", err)
		}

		return models.RecordCompleted, nil

	case models.OutcomeTransientFailure:
		if attempts <= maxRetries {
			delay := retryBase << (attempts - 1)
			// make_interval takes fractional seconds, so sub-second
			// backoffs survive the round trip.
			_, err := tx.Exec(ctx,
				`UPDATE file_migration_records
				 SET status = 'pending', attempts = $3, error_message = $4,
				     next_attempt_at = CURRENT_TIMESTAMP + make_interval(secs => $5)
				 WHERE batch_id = $1 AND file_id = $2`,
				batchID, fileID, attempts, out.ErrorMessage, delay.Seconds())
			if err != nil {
				return "", fmt.Errorf("requeueing record: %w", err)
			}

			return models.RecordPending, nil
		}

		fallthrough

	case models.OutcomePermanentFailure:
		_, err := tx.Exec(ctx,
			`UPDATE file_migration_records
			 SET status = 'failed', attempts = $3, error_message = $4,
			     next_attempt_at = NULL, completed_at = CURRENT_TIMESTAMP
			 WHERE batch_id = $1 AND file_id = $2`,
			batchID, fileID, attempts, out.ErrorMessage)
		if err != nil {
			return "", fmt.Errorf("marking record failed: %w", err)
		}

		return models.RecordFailed, nil

	default:
		return "", fmt.Errorf("unknown outcome kind %d", out.Kind)
	}
}

// rollupBatch recomputes batch counters from an atomic aggregate over the
// batch's records and flips the batch terminal when no open records remain.
// Counters are never incremented in place; racing workers would drift.
func rollupBatch(ctx context.Context, tx pgx.Tx, batchID string) error {
	var completed, failed, verified, open int

	err := tx.QueryRow(ctx,
		`SELECT
		     COUNT(*) FILTER (WHERE status IN ('completed', 'verified')),
		     COUNT(*) FILTER (WHERE status = 'failed'),
		     COUNT(*) FILTER (WHERE status = 'verified'),
		     COUNT(*) FILTER (WHERE status IN ('pending', 'processing'))
		 FROM file_migration_records
		 WHERE batch_id = $1`,
		batchID).Scan(&completed, &failed, &verified, &open)
	if err != nil {
		return fmt.Errorf("aggregating batch records: %w", err)
	}

	if open == 0 {
		status := models.BatchCompleted
		if failed > 0 {
			status = models.BatchFailed
		}

		_, err = tx.Exec(ctx,
			`UPDATE file_migration_batches
			 SET completed_files = $2, failed_files = $3, verified_files = $4,
			     status = $5, completed_at = CURRENT_TIMESTAMP
			 WHERE batch_id = $1 AND status NOT IN ('rolled_back')`,
			batchID, completed, failed, verified, string(status))
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE file_migration_batches
			 SET completed_files = $2, failed_files = $3, verified_files = $4
			 WHERE batch_id = $1`,
			batchID, completed, failed, verified)
	}

	if err != nil {
		return fmt.Errorf("updating batch rollup: %w", err)
	}

	return nil
}

// MarkVerified promotes a completed record to verified after a second,
// independent accessibility probe, and writes the migration columns back
// to the canonical file row. User-visible fields are never touched.
func (s *RecordStore) MarkVerified(ctx context.Context, batchID, fileID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("marking record verified: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	row := tx.QueryRow(ctx,
		`UPDATE file_migration_records
		 SET status = 'verified'
		 WHERE batch_id = $1 AND file_id = $2 AND status = 'completed'
		 RETURNING destination_ref, dest_checksum`,
		batchID, fileID)

	var destRef, destChecksum *string
	if err := row.Scan(&destRef, &destChecksum); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrRecordNotFound
		}

		return fmt.Errorf("promoting record to verified: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE list_cutter_savedfile
		 SET destination_key = $2, migration_status = 'completed',
		     migration_batch_id = $3, checksum = $4, migrated_at = CURRENT_TIMESTAMP
		 WHERE file_id = $1`,
		fileID, destRef, batchID, destChecksum)
	if err != nil {
		return fmt.Errorf("writing back file entity: %w", err)
	}

	if err := rollupBatch(ctx, tx, batchID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing verification: %w", err)
	}

	return nil
}

// ResetStuckProcessing requeues records left in processing by a crashed or
// cancelled run. Safe because uploads are idempotent upserts: a record
// claimed-but-not-committed before a crash is simply retried.
func (s *RecordStore) ResetStuckProcessing(ctx context.Context, batchID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`UPDATE file_migration_records
		 SET status = 'pending', next_attempt_at = NULL, started_at = NULL
		 WHERE batch_id = $1 AND status = 'processing'`,
		batchID)
	if err != nil {
		return 0, fmt.Errorf("resetting stuck records: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// ListRecords returns all records of a batch, optionally filtered by status.
func (s *RecordStore) ListRecords(ctx context.Context, batchID string, status models.RecordStatus) ([]models.FileRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + recordColumns + ` FROM file_migration_records WHERE batch_id = $1`
	args := []any{batchID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY id`

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []models.FileRecord
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		records = append(records, *r)
	}

	return records, rows.Err()
}

// ListRecordsWithRefs returns the batch's records holding a destination
// ref, the working set for rollback.
func (s *RecordStore) ListRecordsWithRefs(ctx context.Context, batchID string) ([]models.FileRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+recordColumns+` FROM file_migration_records
		 WHERE batch_id = $1 AND destination_ref IS NOT NULL
		 ORDER BY id`,
		batchID)
	if err != nil {
		return nil, fmt.Errorf("listing records with refs: %w", err)
	}
	defer rows.Close()

	var records []models.FileRecord
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		records = append(records, *r)
	}

	return records, rows.Err()
}
