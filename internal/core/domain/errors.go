package domain

import (
	"errors"
	"fmt"
)

// ============================================================================
// Error Kinds
// ============================================================================

// Every error returned by the core unwraps to exactly one of these kinds, so
// adapters can classify with errors.Is(err, domain.ErrNotFound).
var (
	ErrUserInput   = errors.New("invalid input")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrIO          = errors.New("filesystem error")
	ErrBackend     = errors.New("backend error")
	ErrConsistency = errors.New("consistency error")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// IOError wraps a filesystem failure so it matches both ErrIO and the cause.
func IOError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

// ============================================================================
// Repository Errors
// ============================================================================

// Validation errors
var (
	ErrEmptyEndpointName   = newKindError(ErrUserInput, "empty endpoint name")
	ErrInvalidEndpointName = newKindError(ErrUserInput, "endpoint name must be a single path element")
	ErrInvalidVersion      = newKindError(ErrUserInput, "version must be a non-negative integer")
	ErrDevVersionImmutable = newKindError(ErrUserInput, "development version cannot be removed")
)

// Not found errors
var (
	ErrEndpointNotFound = newKindError(ErrNotFound, "endpoint not found")
	ErrVersionNotFound  = newKindError(ErrNotFound, "version not found")
	ErrInfoNotFound     = newKindError(ErrNotFound, "info not found")
	ErrModelNotFound    = newKindError(ErrNotFound, "model not found")
)

// Conflict errors
var (
	ErrEndpointExists = newKindError(ErrConflict, "endpoint already exists")
	ErrVersionExists  = newKindError(ErrConflict, "version already exists")
	ErrEndpointLocked = newKindError(ErrConflict, "endpoint is locked by another process")
)

// ============================================================================
// Archive Errors
// ============================================================================

var (
	ErrArchiveNotFound = newKindError(ErrIO, "archive file not found")
	ErrUnsafeArchive   = newKindError(ErrIO, "archive entry escapes the endpoint directory")
)

// ============================================================================
// Pipeline Errors
// ============================================================================

var (
	ErrDatasetNotFound   = newKindError(ErrUserInput, "dataset file not found")
	ErrMissingTargets    = newKindError(ErrUserInput, "dataset has no activity values, cannot build model")
	ErrTargetMismatch    = newKindError(ErrUserInput, "feature rows and target values differ in length")
	ErrEmptyDataset      = newKindError(ErrConsistency, "no records found in dataset")
	ErrColumnMismatch    = newKindError(ErrConsistency, "chunk results have mismatched feature column counts")
	ErrRowCountMismatch  = newKindError(ErrConsistency, "chunk result row count differs from chunk record count")
	ErrChunkFailed       = newKindError(ErrBackend, "chunk processing failed")
	ErrUnsupportedMethod = newKindError(ErrBackend, "workflow method not supported")
)

// ============================================================================
// Learn Errors
// ============================================================================

var (
	ErrUnknownBackend     = newKindError(ErrBackend, "modeling method not recognised")
	ErrBuildFailed        = newKindError(ErrBackend, "model build failed")
	ErrValidationFailed   = newKindError(ErrBackend, "model validation failed")
	ErrBackendNotBuilt    = newKindError(ErrBackend, "model has not been built")
	ErrIncompatibleSchema = newKindError(ErrConsistency, "artifact schema version not supported")
)
