package drive

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classify failures across the service boundary.
// Callers test for them with errors.Is.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrNotFoundOrForbidden = errors.New("not found or forbidden")
	ErrValidation          = errors.New("validation failed")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StorageError is a single blob that could not be removed or read.
type StorageError struct {
	FileID string
	Path   string
	Err    error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("object %s (file %s): %v", e.Path, e.FileID, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

// PartialStorageFailure is returned when metadata changes were committed but
// one or more blobs could not be removed. The rows are gone; the listed blobs
// may remain in the object store.
type PartialStorageFailure struct {
	Failures []StorageError
}

func (e *PartialStorageFailure) Error() string {
	if len(e.Failures) == 1 {
		return "1 storage object could not be removed: " + e.Failures[0].Error()
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%d storage objects could not be removed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *PartialStorageFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// ItemResult is the outcome for one requested id of a batch operation.
type ItemResult struct {
	ID      string
	Success bool
	Err     error
}
