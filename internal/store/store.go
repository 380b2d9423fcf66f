// Package store is the durable state store for the migration pipeline.
//
// It owns the batch and per-file record bookkeeping in PostgreSQL and is
// the single shared mutable resource of the pipeline: the atomic
// claim-and-mark in RecordStore is the only mutual-exclusion point the
// orchestrator relies on. Stores embed shared helpers via the Base struct
// and never import each other.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/list-cutter/cutover/internal/dbpool"
	"github.com/list-cutter/cutover/internal/models"
)

const defaultQueryTimeout = 30 * time.Second

// Base contains shared dependencies for all stores.
// Embed this in each store struct.
type Base struct {
	Pool *dbpool.Pool
	Log  *logrus.Logger
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// batchColumns is the canonical column list for file_migration_batches.
const batchColumns = `batch_id, total_files, completed_files, failed_files, verified_files,
	status, created_at, started_at, completed_at`

// recordColumns is the canonical column list for file_migration_records.
const recordColumns = `batch_id, file_id, source_path, file_size, status, attempts,
	error_message, source_checksum, dest_checksum, destination_ref,
	next_attempt_at, started_at, completed_at`

// scanFn matches pgx.Row.Scan and pgx.Rows.Scan.
type scanFn func(dest ...any) error

func scanBatch(scan scanFn) (*models.Batch, error) {
	var b models.Batch

	err := scan(&b.ID, &b.TotalFiles, &b.CompletedFiles, &b.FailedFiles, &b.VerifiedFiles,
		&b.Status, &b.CreatedAt, &b.StartedAt, &b.CompletedAt)
	if err != nil {
		return nil, err
	}

	return &b, nil
}

func scanRecord(scan scanFn) (*models.FileRecord, error) {
	var r models.FileRecord

	err := scan(&r.BatchID, &r.FileID, &r.SourcePath, &r.FileSize, &r.Status, &r.Attempts,
		&r.ErrorMessage, &r.SourceChecksum, &r.DestChecksum, &r.DestinationRef,
		&r.NextAttemptAt, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// normalizeMetadata decodes a metadata document read from the store,
// defaulting to an empty map on parse failure rather than propagating a
// parse error. Invalid in-database metadata must never fail a migration.
func (b *Base) normalizeMetadata(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		b.Log.WithField("metadata", string(raw)).Warn("invalid metadata document, defaulting to empty")

		return map[string]any{}
	}

	if m == nil {
		return map[string]any{}
	}

	return m
}
