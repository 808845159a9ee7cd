package intake

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrValidation indicates a submission is missing a required value
	ErrValidation = errors.New("validation failed")

	// ErrBackend indicates the content backend could not be reached or rejected a call
	ErrBackend = errors.New("content backend error")

	// ErrObjectExists indicates an exclusive create hit an existing object
	ErrObjectExists = errors.New("object already exists")

	// ErrObjectNotFound indicates a stored object does not exist
	ErrObjectNotFound = errors.New("object not found")

	// ErrRecordNotFound indicates a backend record does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrUnknownForm indicates a form name that is not registered
	ErrUnknownForm = errors.New("unknown form")
)

// ValidationError reports the field that failed validation
type ValidationError struct {
	Form   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("form %s: field %s %s", e.Form, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// BackendError represents a failed call to the content backend
type BackendError struct {
	Collection string
	Op         string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend operation %s on %s failed with status %d: %v", e.Op, e.Collection, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend operation %s on %s failed: %v", e.Op, e.Collection, e.Err)
}

// Unwrap exposes both ErrBackend and the underlying cause to errors.Is.
func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBackend}
	}
	return []error{ErrBackend, e.Err}
}
