package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all repository implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the
	// store.
	ErrNotFound = errors.New("entity not found")

	// ErrJobNotFound indicates that the requested job does not exist.
	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)

	// ErrDuplicate is returned when an insert would violate a uniqueness
	// constraint.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails to
	// commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// RepositoryError is the error type surfaced for storage I/O faults. It
// carries the operation and job context so callers and logs can tell which
// persistence call failed; it is never swallowed by the repository itself.
type RepositoryError struct {
	Operation string // the repository method that failed (e.g. "save")
	JobID     string // the job id involved, if any
	Message   string
	Err       error
}

// Error implements the error interface for RepositoryError.
func (e *RepositoryError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("job repository %s failed for %s: %s: %v",
			e.Operation, e.JobID, e.Message, e.Err)
	}
	return fmt.Sprintf("job repository %s failed: %s: %v", e.Operation, e.Message, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a new RepositoryError for the given operation.
func NewRepositoryError(operation, jobID, message string, err error) *RepositoryError {
	return &RepositoryError{
		Operation: operation,
		JobID:     jobID,
		Message:   message,
		Err:       err,
	}
}
