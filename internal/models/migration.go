// Package models defines the shared data model for the cutover migration
// pipeline: batches, per-file migration records, source file entities,
// lineage edges, and the error taxonomy used across components.
package models

import "time"

// BatchStatus is the lifecycle state of a migration batch.
type BatchStatus string

// Batch lifecycle states. Transitions only move forward except on rollback.
const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchRolledBack BatchStatus = "rolled_back"
)

// Terminal reports whether the batch status accepts no further file work.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed || s == BatchRolledBack
}

// RecordStatus is the lifecycle state of a single file migration record.
type RecordStatus string

// File record lifecycle: pending → processing → {completed → verified} | failed.
const (
	RecordPending    RecordStatus = "pending"
	RecordProcessing RecordStatus = "processing"
	RecordCompleted  RecordStatus = "completed"
	RecordVerified   RecordStatus = "verified"
	RecordFailed     RecordStatus = "failed"
)

// Batch is a bounded set of files migrated together as one
// planning/execution/rollback unit.
type Batch struct {
	ID             string      `json:"batch_id"`
	TotalFiles     int         `json:"total_files"`
	CompletedFiles int         `json:"completed_files"`
	FailedFiles    int         `json:"failed_files"`
	VerifiedFiles  int         `json:"verified_files"`
	Status         BatchStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// FileRecord tracks one file's progress within a batch.
type FileRecord struct {
	BatchID        string       `json:"batch_id"`
	FileID         string       `json:"file_id"`
	SourcePath     string       `json:"source_path"`
	FileSize       int64        `json:"file_size"`
	Status         RecordStatus `json:"status"`
	Attempts       int          `json:"attempts"`
	ErrorMessage   *string      `json:"error_message,omitempty"`
	SourceChecksum *string      `json:"source_checksum,omitempty"`
	DestChecksum   *string      `json:"dest_checksum,omitempty"`
	DestinationRef *string      `json:"destination_ref,omitempty"`
	NextAttemptAt  *time.Time   `json:"next_attempt_at,omitempty"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// FileEntity is the canonical file row owned by the web application.
// The pipeline reads it and writes back only the migration columns.
type FileEntity struct {
	FileID         string         `json:"file_id"`
	UserID         string         `json:"user_id"`
	FileName       string         `json:"file_name"`
	FilePath       string         `json:"file_path"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	MigrationState string         `json:"migration_status"`
	BatchID        *string        `json:"migration_batch_id,omitempty"`
	DestinationKey *string        `json:"destination_key,omitempty"`
}

// LineageEdge is a flat file-derivation row exported from the graph store.
// Only adjacency pairs are needed; no traversal semantics.
type LineageEdge struct {
	SourceFileID     string         `json:"source_file_id"`
	TargetFileID     string         `json:"target_file_id"`
	RelationshipType string         `json:"relationship_type"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Verified         bool           `json:"verified"`
}

// Candidate is a file selected for migration at planning time.
type Candidate struct {
	FileID     string
	SourcePath string
	FileSize   int64
}

// RollbackResult reports what a rollback managed to undo. Destination
// deletes are best-effort; failures are counted, not fatal.
type RollbackResult struct {
	BatchID        string `json:"batch_id"`
	Deleted        int    `json:"deleted"`
	DeleteFailures int    `json:"delete_failures"`
	RefsCleared    int    `json:"refs_cleared"`
}

// OutcomeKind classifies how a single file attempt ended.
type OutcomeKind int

// Attempt outcomes recorded against a claimed file record.
const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeTransientFailure
	OutcomePermanentFailure
)

// Outcome carries the result of one file migration attempt back to the
// state store.
type Outcome struct {
	Kind           OutcomeKind
	DestinationRef string
	SourceChecksum string
	DestChecksum   string
	ErrorMessage   string
}

// SummaryStatus is the overall result of a RunBatch invocation.
type SummaryStatus string

// RunBatch outcomes. Partial means at least one file succeeded and at
// least one permanently failed.
const (
	SummaryCompleted SummaryStatus = "completed"
	SummaryPartial   SummaryStatus = "partial"
	SummaryFailed    SummaryStatus = "failed"
)

// Summary is the batch outcome reported to the caller. A nonzero Failed
// count is not itself fatal; the caller decides.
type Summary struct {
	BatchID   string        `json:"batch_id"`
	Status    SummaryStatus `json:"status"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	DryRun    bool          `json:"dry_run,omitempty"`
	Duration  time.Duration `json:"-"`
}

// BatchProgress is a read-only projection of per-status record counts.
type BatchProgress struct {
	Batch        Batch                `json:"batch"`
	StatusCounts map[RecordStatus]int `json:"file_statuses"`
}
