package history

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField marks a request that lacks a required input.
	ErrMissingField = errors.New("missing required field")
	// ErrNoUpdates is returned when a patch would change nothing.
	ErrNoUpdates = errors.New("no updates provided")
	// ErrSyncFailed is returned when a task write touched no rows although
	// the task was just read. It means a policy dropped the write or the
	// task was deleted concurrently.
	ErrSyncFailed = errors.New("no rows updated")
	// ErrConcurrentModification is returned when a conditional task write
	// lost to another writer.
	ErrConcurrentModification = errors.New("task was modified concurrently")
)

// MissingFieldError names the absent field. It matches ErrMissingField.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing '%s'", e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

func missing(field string) error {
	return &MissingFieldError{Field: field}
}
