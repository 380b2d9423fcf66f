package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/list-cutter/cutover/internal/models"
)

// FileStore reads the canonical file entity table owned by the web
// application. Everything here is read-only except the migration columns,
// which MarkVerified and DeleteDestinationRefs manage elsewhere.
type FileStore struct {
	Base
}

// NewFileStore creates a FileStore.
func NewFileStore(base Base) *FileStore {
	return &FileStore{Base: base}
}

const fileColumns = `file_id, user_id::text, file_name, file_path, metadata,
	COALESCE(migration_status, 'pending'), migration_batch_id, destination_key`

// ListEligible returns up to limit files not yet migrated and not attached
// to any active batch, oldest upload first.
func (s *FileStore) ListEligible(ctx context.Context, limit int) ([]models.FileEntity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+fileColumns+`
		 FROM list_cutter_savedfile f
		 WHERE (f.migration_status IS NULL OR f.migration_status = 'pending')
		   AND f.destination_key IS NULL
		   AND NOT EXISTS (
		       SELECT 1
		       FROM file_migration_records r
		       JOIN file_migration_batches b ON b.batch_id = r.batch_id
		       WHERE r.file_id = f.file_id
		         AND b.status NOT IN `+terminalBatchStatuses+`
		   )
		 ORDER BY f.uploaded_at ASC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("listing eligible files: %w", err)
	}
	defer rows.Close()

	return s.scanFiles(rows)
}

// GetFile returns one canonical file row.
func (s *FileStore) GetFile(ctx context.Context, fileID string) (*models.FileEntity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM list_cutter_savedfile WHERE file_id = $1`, fileID)

	f, err := s.scanFile(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrRecordNotFound
		}

		return nil, fmt.Errorf("scanning file entity: %w", err)
	}

	return f, nil
}

// ListByBatch returns the canonical file rows for every record in a batch,
// keyed by file ID. Used by the validator to cross-check without trusting
// the orchestrator's bookkeeping.
func (s *FileStore) ListByBatch(ctx context.Context, batchID string) (map[string]models.FileEntity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+fileColumns+`
		 FROM list_cutter_savedfile f
		 WHERE f.file_id IN (
		     SELECT file_id FROM file_migration_records WHERE batch_id = $1
		 )`,
		batchID)
	if err != nil {
		return nil, fmt.Errorf("listing batch files: %w", err)
	}
	defer rows.Close()

	files, err := s.scanFiles(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.FileEntity, len(files))
	for _, f := range files {
		byID[f.FileID] = f
	}

	return byID, nil
}

func (s *FileStore) scanFiles(rows pgx.Rows) ([]models.FileEntity, error) {
	var files []models.FileEntity
	for rows.Next() {
		f, err := s.scanFile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning file row: %w", err)
		}
		files = append(files, *f)
	}

	return files, rows.Err()
}

func (s *FileStore) scanFile(scan scanFn) (*models.FileEntity, error) {
	var f models.FileEntity
	var rawMeta []byte

	err := scan(&f.FileID, &f.UserID, &f.FileName, &f.FilePath, &rawMeta,
		&f.MigrationState, &f.BatchID, &f.DestinationKey)
	if err != nil {
		return nil, err
	}

	f.Metadata = s.normalizeMetadata(rawMeta)

	return &f, nil
}
