package migrate

import (
	"context"
	"io"
	"time"

	"github.com/list-cutter/cutover/client"
	"github.com/list-cutter/cutover/internal/models"
)

// StateStore is the durable bookkeeping surface the orchestrator drives.
// Implemented by the stores in internal/store; mocked in tests.
type StateStore interface {
	CreateBatch(ctx context.Context, files []models.Candidate) (string, error)
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	Progress(ctx context.Context, batchID string) (*models.BatchProgress, error)
	StartBatch(ctx context.Context, batchID string) error
	MarkRolledBack(ctx context.Context, batchID string) error
	DeleteDestinationRefs(ctx context.Context, batchID string) (int, error)

	ClaimNextPending(ctx context.Context, batchID string) (*models.FileRecord, error)
	RecordOutcome(ctx context.Context, batchID, fileID string, out models.Outcome, maxRetries int, retryBase time.Duration) (models.RecordStatus, error)
	MarkVerified(ctx context.Context, batchID, fileID string) error
	ResetStuckProcessing(ctx context.Context, batchID string) (int, error)
	ListRecords(ctx context.Context, batchID string, status models.RecordStatus) ([]models.FileRecord, error)
	ListRecordsWithRefs(ctx context.Context, batchID string) ([]models.FileRecord, error)

	ListEligible(ctx context.Context, limit int) ([]models.FileEntity, error)
	GetFile(ctx context.Context, fileID string) (*models.FileEntity, error)
}

// Transfer moves bytes to the destination and probes the result.
// Implemented by client.Client; mocked in tests.
type Transfer interface {
	Upload(ctx context.Context, fileID string, r io.Reader, meta client.UploadMetadata) (string, error)
	ConfirmAccessible(ctx context.Context, ref string) (client.ProbeResult, error)
	Delete(ctx context.Context, ref string) error
	HealthCheck(ctx context.Context) bool
}
