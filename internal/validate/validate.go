// Package validate is the reconciliation validator: it re-derives
// "is this file correctly migrated" from the source filesystem, the
// source database, and the destination API, without trusting the
// orchestrator's own bookkeeping. It reads and reports; it never
// mutates migration state.
package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/list-cutter/cutover/client"
	"github.com/list-cutter/cutover/internal/checksum"
	"github.com/list-cutter/cutover/internal/models"
)

// FileStatus classifies one file's reconciliation outcome.
type FileStatus string

// Reconciliation outcomes. Warning means the file is reachable at the
// destination but its integrity could not be corroborated.
const (
	StatusSuccess FileStatus = "success"
	StatusFailed  FileStatus = "failed"
	StatusWarning FileStatus = "warning"
)

// FileValidationResult is the reconciliation verdict for one file.
type FileValidationResult struct {
	FileID         string     `json:"file_id"`
	Status         FileStatus `json:"status"`
	RecordStatus   string     `json:"record_status"`
	DestinationRef string     `json:"destination_ref,omitempty"`
	SourceChecksum string     `json:"source_checksum,omitempty"`
	DestChecksum   string     `json:"dest_checksum,omitempty"`
	Errors         []string   `json:"errors,omitempty"`
	Warnings       []string   `json:"warnings,omitempty"`
}

// BatchValidationResult rolls per-file verdicts up for one batch.
type BatchValidationResult struct {
	BatchID    string                 `json:"batch_id"`
	Status     models.BatchStatus     `json:"batch_status"`
	Total      int                    `json:"total_files"`
	Successful int                    `json:"successful_files"`
	Failed     int                    `json:"failed_files"`
	Warnings   int                    `json:"warning_files"`
	Files      []FileValidationResult `json:"files"`
}

// ValidationReport is the overall reconciliation report across batches.
type ValidationReport struct {
	GeneratedAt     time.Time               `json:"generated_at"`
	Batches         []BatchValidationResult `json:"batches"`
	TotalFiles      int                     `json:"total_files"`
	SuccessfulFiles int                     `json:"successful_files"`
	FailedFiles     int                     `json:"failed_files"`
	WarningFiles    int                     `json:"warning_files"`
	SuccessRate     float64                 `json:"success_rate"`
}

// rate derives the success percentage, defined as 0.0 for an empty report.
func rate(successful, total int) float64 {
	if total == 0 {
		return 0.0
	}

	return float64(successful) / float64(total) * 100.0
}

// RecordSource is the read-only state-store surface the validator needs.
type RecordSource interface {
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	ListBatches(ctx context.Context, status models.BatchStatus, limit int) ([]models.Batch, error)
	ListRecords(ctx context.Context, batchID string, status models.RecordStatus) ([]models.FileRecord, error)
	ListByBatch(ctx context.Context, batchID string) (map[string]models.FileEntity, error)
}

// Prober is the destination surface the validator needs.
type Prober interface {
	ConfirmAccessible(ctx context.Context, ref string) (client.ProbeResult, error)
	HealthCheck(ctx context.Context) bool
}

// SourceReader re-derives a digest from the original source blob.
// Usually the checksum engine over the local filesystem.
type SourceReader interface {
	DigestFile(path string) (string, error)
}

// Validator cross-queries source and destination for discrepancies.
type Validator struct {
	store  RecordSource
	probe  Prober
	source SourceReader
	log    *logrus.Logger
}

// New creates a Validator. Pass checksum.New(...) as the SourceReader
// unless a test substitutes its own.
func New(store RecordSource, probe Prober, source SourceReader, log *logrus.Logger) *Validator {
	if source == nil {
		source = checksum.New(0)
	}

	return &Validator{store: store, probe: probe, source: source, log: log}
}

// ValidateBatch reconciles every record of one batch. It accumulates
// all per-file results; a failing file never aborts the walk.
func (v *Validator) ValidateBatch(ctx context.Context, batchID string) (*BatchValidationResult, error) {
	batch, err := v.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	records, err := v.store.ListRecords(ctx, batchID, "")
	if err != nil {
		return nil, err
	}

	entities, err := v.store.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	result := &BatchValidationResult{
		BatchID: batchID,
		Status:  batch.Status,
		Total:   len(records),
		Files:   make([]FileValidationResult, 0, len(records)),
	}

	for _, rec := range records {
		fr := v.validateFile(ctx, &rec, entities)
		result.Files = append(result.Files, fr)

		switch fr.Status {
		case StatusSuccess:
			result.Successful++
		case StatusWarning:
			result.Warnings++
		default:
			result.Failed++
		}
	}

	v.log.WithFields(logrus.Fields{
		"batch_id": batchID,
		"total":    result.Total,
		"ok":       result.Successful,
		"failed":   result.Failed,
		"warnings": result.Warnings,
	}).Info("batch reconciled")

	return result, nil
}

// ValidateAll reconciles every batch, or only the given batch IDs when
// any are passed, and rolls them up into one report.
func (v *Validator) ValidateAll(ctx context.Context, batchIDs ...string) (*ValidationReport, error) {
	if len(batchIDs) == 0 {
		batches, err := v.store.ListBatches(ctx, "", 0)
		if err != nil {
			return nil, err
		}

		for _, b := range batches {
			batchIDs = append(batchIDs, b.ID)
		}
	}

	report := &ValidationReport{GeneratedAt: time.Now().UTC()}
	for _, id := range batchIDs {
		br, err := v.ValidateBatch(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("validating batch %s: %w", id, err)
		}

		report.Batches = append(report.Batches, *br)
		report.TotalFiles += br.Total
		report.SuccessfulFiles += br.Successful
		report.FailedFiles += br.Failed
		report.WarningFiles += br.Warnings
	}

	report.SuccessRate = rate(report.SuccessfulFiles, report.TotalFiles)

	return report, nil
}
