package validate

import (
	"context"
	"fmt"
	"os"

	"github.com/list-cutter/cutover/internal/models"
)

// validateFile reconciles one record against source and destination.
// Only records claiming success are held to the full bar: a failed or
// unattempted record is reported failed with its recorded reason.
func (v *Validator) validateFile(ctx context.Context, rec *models.FileRecord, entities map[string]models.FileEntity) FileValidationResult {
	fr := FileValidationResult{
		FileID:       rec.FileID,
		RecordStatus: string(rec.Status),
	}
	if rec.DestinationRef != nil {
		fr.DestinationRef = *rec.DestinationRef
	}

	if rec.Status != models.RecordCompleted && rec.Status != models.RecordVerified {
		fr.Status = StatusFailed
		msg := fmt.Sprintf("record status is %s, not migrated", rec.Status)
		if rec.ErrorMessage != nil && *rec.ErrorMessage != "" {
			msg += ": " + *rec.ErrorMessage
		}
		fr.Errors = append(fr.Errors, msg)

		return fr
	}

	entity, ok := entities[rec.FileID]
	if !ok {
		fr.Status = StatusFailed
		fr.Errors = append(fr.Errors, "file entity missing from source database")

		return fr
	}

	v.checkSourceConsistency(rec, &entity, &fr)
	v.checkDestination(ctx, rec, &fr)

	switch {
	case len(fr.Errors) > 0:
		fr.Status = StatusFailed
	case len(fr.Warnings) > 0:
		fr.Status = StatusWarning
	default:
		fr.Status = StatusSuccess
	}

	return fr
}

// checkSourceConsistency cross-checks the migration record against the
// canonical file row and the source blob itself.
func (v *Validator) checkSourceConsistency(rec *models.FileRecord, entity *models.FileEntity, fr *FileValidationResult) {
	if rec.Status == models.RecordVerified && entity.MigrationState != "completed" {
		fr.Errors = append(fr.Errors,
			fmt.Sprintf("record is verified but file row reports migration_status %q", entity.MigrationState))
	}

	if rec.DestinationRef != nil && entity.DestinationKey != nil && *rec.DestinationRef != *entity.DestinationKey {
		fr.Errors = append(fr.Errors,
			fmt.Sprintf("destination ref disagreement: record %q, file row %q", *rec.DestinationRef, *entity.DestinationKey))
	}

	if rec.SourceChecksum == nil || *rec.SourceChecksum == "" {
		fr.Warnings = append(fr.Warnings, "no source checksum recorded")

		return
	}
	fr.SourceChecksum = *rec.SourceChecksum

	// Re-derive the digest from the blob so a post-migration source edit
	// or a bad recorded digest is caught. A vanished source is only a
	// warning: deleting the original after cutover is legitimate.
	sum, err := v.source.DigestFile(entity.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			fr.Warnings = append(fr.Warnings, "source file no longer present, checksum taken from record")
		} else {
			fr.Warnings = append(fr.Warnings, fmt.Sprintf("source file unreadable: %v", err))
		}

		return
	}

	if sum != *rec.SourceChecksum {
		fr.Errors = append(fr.Errors,
			fmt.Sprintf("source blob digest %s does not match recorded checksum %s", sum, *rec.SourceChecksum))
	}
}

// checkDestination probes the destination object and compares digests.
func (v *Validator) checkDestination(ctx context.Context, rec *models.FileRecord, fr *FileValidationResult) {
	if rec.DestinationRef == nil || *rec.DestinationRef == "" {
		fr.Errors = append(fr.Errors, "record has no destination ref")

		return
	}

	probe, err := v.probe.ConfirmAccessible(ctx, *rec.DestinationRef)
	if err != nil {
		fr.Errors = append(fr.Errors, fmt.Sprintf("destination probe failed: %v", err))

		return
	}

	if !probe.Exists {
		fr.Errors = append(fr.Errors, "destination object not found")

		return
	}

	if rec.FileSize > 0 && probe.Size > 0 && probe.Size != rec.FileSize {
		fr.Errors = append(fr.Errors,
			fmt.Sprintf("size disagreement: source %d bytes, destination %d bytes", rec.FileSize, probe.Size))
	}

	if probe.Checksum == "" {
		fr.Warnings = append(fr.Warnings, "destination reports no checksum, integrity unverifiable")

		return
	}
	fr.DestChecksum = probe.Checksum

	if rec.SourceChecksum != nil && *rec.SourceChecksum != "" && probe.Checksum != *rec.SourceChecksum {
		fr.Errors = append(fr.Errors,
			fmt.Sprintf("checksum mismatch: source %s, destination %s", *rec.SourceChecksum, probe.Checksum))
	}
}
