package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/list-cutter/cutover/internal/models"
)

// terminalBatchStatuses is reused in active-batch conflict checks.
const terminalBatchStatuses = `('completed', 'failed', 'rolled_back')`

// BatchStore handles migration batch bookkeeping.
type BatchStore struct {
	Base
}

// NewBatchStore creates a BatchStore.
func NewBatchStore(base Base) *BatchStore {
	return &BatchStore{Base: base}
}

// CreateBatch creates one batch plus one pending record per file,
// all-or-nothing. Files already attached to an active batch reject the
// whole call with ConflictError.
func (s *BatchStore) CreateBatch(ctx context.Context, files []models.Candidate) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if len(files) == 0 {
		return "", fmt.Errorf("creating batch: no files given")
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("creating batch: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.FileID
	}

	conflicts, err := activeBatchMembers(ctx, tx, ids)
	if err != nil {
		return "", fmt.Errorf("checking batch conflicts: %w", err)
	}

	if len(conflicts) > 0 {
		return "", &models.ConflictError{FileIDs: conflicts}
	}

	batchID := uuid.NewString()

	_, err = tx.Exec(ctx,
		`INSERT INTO file_migration_batches (batch_id, total_files, status)
		 VALUES ($1, $2, 'pending')`,
		batchID, len(files))
	if err != nil {
		return "", fmt.Errorf("inserting batch: %w", err)
	}

	for _, f := range files {
		_, err = tx.Exec(ctx,
			`INSERT INTO file_migration_records (batch_id, file_id, source_path, file_size, status)
			 VALUES ($1, $2, $3, $4, 'pending')`,
			batchID, f.FileID, f.SourcePath, f.FileSize)
		if err != nil {
			return "", fmt.Errorf("inserting record for file %s: %w", f.FileID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing batch creation: %w", err)
	}

	s.Log.WithFields(map[string]any{"batch_id": batchID, "files": len(files)}).Info("migration batch created")

	return batchID, nil
}

// activeBatchMembers returns the subset of ids already attached to a
// non-terminal batch.
func activeBatchMembers(ctx context.Context, tx pgx.Tx, ids []string) ([]string, error) {
	rows, err := tx.Query(ctx,
		`SELECT DISTINCT r.file_id
		 FROM file_migration_records r
		 JOIN file_migration_batches b ON b.batch_id = r.batch_id
		 WHERE b.status NOT IN `+terminalBatchStatuses+`
		   AND r.file_id = ANY($1)`,
		ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		conflicts = append(conflicts, id)
	}

	return conflicts, rows.Err()
}

// GetBatch returns one batch by ID.
func (s *BatchStore) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM file_migration_batches WHERE batch_id = $1`, batchID)

	b, err := scanBatch(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrBatchNotFound
		}

		return nil, fmt.Errorf("scanning batch: %w", err)
	}

	return b, nil
}

// ListBatches returns batches newest first, optionally filtered by
// status. A non-positive limit returns all batches (the validator walks
// every one).
func (s *BatchStore) ListBatches(ctx context.Context, status models.BatchStatus, limit int) ([]models.Batch, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + batchColumns + ` FROM file_migration_batches`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	defer rows.Close()

	var batches []models.Batch
	for rows.Next() {
		b, err := scanBatch(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning batch row: %w", err)
		}
		batches = append(batches, *b)
	}

	return batches, rows.Err()
}

// Progress returns the batch plus a per-status record count breakdown.
func (s *BatchStore) Progress(ctx context.Context, batchID string) (*models.BatchProgress, error) {
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT status, COUNT(*) FROM file_migration_records WHERE batch_id = $1 GROUP BY status`,
		batchID)
	if err != nil {
		return nil, fmt.Errorf("counting record statuses: %w", err)
	}
	defer rows.Close()

	counts := map[models.RecordStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[models.RecordStatus(status)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.BatchProgress{Batch: *b, StatusCounts: counts}, nil
}

// StartBatch moves a batch to processing, stamping started_at on first entry.
func (s *BatchStore) StartBatch(ctx context.Context, batchID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`UPDATE file_migration_batches
		 SET status = 'processing', started_at = COALESCE(started_at, CURRENT_TIMESTAMP)
		 WHERE batch_id = $1 AND status NOT IN `+terminalBatchStatuses,
		batchID)
	if err != nil {
		return fmt.Errorf("starting batch: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrBatchNotFound
	}

	return nil
}

// MarkRolledBack flips a batch to rolled_back and stamps completion.
func (s *BatchStore) MarkRolledBack(ctx context.Context, batchID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`UPDATE file_migration_batches
		 SET status = 'rolled_back', completed_at = CURRENT_TIMESTAMP
		 WHERE batch_id = $1`,
		batchID)
	if err != nil {
		return fmt.Errorf("marking batch rolled back: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrBatchNotFound
	}

	return nil
}

// DeleteDestinationRefs clears destination keys for a batch's records and
// resets the migration columns on the canonical file rows. Deleting the
// destination objects themselves is the transfer client's job.
func (s *BatchStore) DeleteDestinationRefs(ctx context.Context, batchID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("clearing destination refs: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	_, err = tx.Exec(ctx,
		`UPDATE list_cutter_savedfile
		 SET destination_key = NULL, migration_status = 'pending',
		     migration_batch_id = NULL, checksum = NULL, migrated_at = NULL
		 WHERE migration_batch_id = $1`,
		batchID)
	if err != nil {
		return 0, fmt.Errorf("resetting file entity rows: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE file_migration_records
		 SET destination_ref = NULL, dest_checksum = NULL
		 WHERE batch_id = $1 AND destination_ref IS NOT NULL`,
		batchID)
	if err != nil {
		return 0, fmt.Errorf("clearing record destination refs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing destination ref cleanup: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
