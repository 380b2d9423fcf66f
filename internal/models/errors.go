package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for entity lookups.
var (
	ErrBatchNotFound  = errors.New("batch not found")
	ErrRecordNotFound = errors.New("file migration record not found")
)

// ErrBatchProcessing indicates an operation was refused because the batch
// still has in-flight work (e.g. rollback while processing).
var ErrBatchProcessing = errors.New("batch is processing")

// ErrNothingToMigrate indicates planning found no eligible files.
var ErrNothingToMigrate = errors.New("no files eligible for migration")

// TransientError marks a failure that is safe to retry: network errors,
// timeouts, rate limits, and 5xx responses from the destination.
type TransientError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that must not be retried: validation
// failures, oversized files, and 4xx responses other than rate limits.
type PermanentError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PermanentError) Unwrap() error { return e.Err }

// SchemaError marks an environment problem that makes continuing
// meaningless: the state store is unreachable or lacks privileges.
type SchemaError struct {
	Err error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error { return e.Err }

// ConflictError indicates files already attached to an active batch,
// rejected at planning time.
type ConflictError struct {
	FileIDs []string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("files already in an active batch: %s", strings.Join(e.FileIDs, ", "))
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsSchema reports whether err is (or wraps) a SchemaError.
func IsSchema(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
