package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrVersionConflict is returned when a compare-and-swap update finds a newer
// version of the record than the one it read. Callers re-read and retry.
var ErrVersionConflict = errors.New("version conflict: record was modified concurrently")

// DBError represents a database operation error with context
type DBError struct {
	Operation string
	Err       error
}

// Error implements the error interface
func (e *DBError) Error() string {
	return fmt.Sprintf("database error in %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DBError) Unwrap() error {
	return e.Err
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       interface{}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("%s not found: %v", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field  string
	Reason string
	Value  interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Reason)
}

// BatchError accumulates per-chunk failures from a batch job. The error count
// is always exact; per-item detail is capped so a mostly-failed run does not
// produce an unbounded report.
type BatchError struct {
	Operation string
	Count     int
	Details   []string
}

// maxBatchErrorDetails caps how many individual failures a BatchError keeps.
const maxBatchErrorDetails = 10

// Error implements the error interface
func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %s: %d chunk failure(s); first %d: %s",
		e.Operation, e.Count, len(e.Details), strings.Join(e.Details, "; "))
}

// Record adds one failure, keeping the count exact and the detail capped.
func (e *BatchError) Record(err error) {
	e.Count++
	if len(e.Details) < maxBatchErrorDetails {
		e.Details = append(e.Details, err.Error())
	}
}

// OrNil returns the BatchError itself if anything failed, nil otherwise.
func (e *BatchError) OrNil() error {
	if e.Count == 0 {
		return nil
	}
	return e
}

// WrapDBError wraps a database error with operation context
// This provides better error messages and makes debugging easier
func WrapDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &DBError{
		Operation: operation,
		Err:       err,
	}
}

// NewNotFoundErrorWithID creates a new NotFoundError with an ID
func NewNotFoundErrorWithID(resource string, id interface{}) error {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, reason string) error {
	return &ValidationError{
		Field:  field,
		Reason: reason,
	}
}

// IsNotFound reports whether err is a NotFoundError or GORM's record-not-found.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, gorm.ErrRecordNotFound)
}
