package model

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Callers classify failures with errors.Is.
var (
	// ErrValidation indicates malformed input: out-of-range scores, empty
	// content, unknown memory types. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrCollaboratorUnavailable indicates that the embedder or the vector
	// index could not serve a call (timeout, connection error, driver error).
	// Callers decide on retry policy.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrNotFound indicates that a memory no longer exists.
	ErrNotFound = errors.New("memory not found")
)

// Validationf returns an error wrapping ErrValidation with a formatted reason.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Unavailable wraps err as ErrCollaboratorUnavailable for the named operation.
//
// Errors that already carry a kind (validation, not-found, context
// cancellation) are returned unchanged so their classification survives.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrCollaboratorUnavailable) {
		return err
	}
	return &collaboratorError{op: op, err: err}
}

type collaboratorError struct {
	op  string
	err error
}

func (e *collaboratorError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.op, ErrCollaboratorUnavailable, e.err)
}

func (e *collaboratorError) Unwrap() []error {
	return []error{ErrCollaboratorUnavailable, e.err}
}
