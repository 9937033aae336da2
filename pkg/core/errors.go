// Package core provides the brainmem client: the facade that stores and
// retrieves memories through the intelligence layer.
package core

import (
	"errors"
	"fmt"

	"github.com/powerbrain/brainmem-go/pkg/model"
)

// Error kinds. The first three alias the model sentinels so callers only need
// to import core to classify failures with errors.Is.
var (
	// ErrValidation indicates malformed input. Never retried.
	ErrValidation = model.ErrValidation

	// ErrCollaboratorUnavailable indicates that the embedder, the vector
	// index or the LLM failed. Callers choose a retry policy.
	ErrCollaboratorUnavailable = model.ErrCollaboratorUnavailable

	// ErrNotFound indicates that a requested memory was not found.
	ErrNotFound = model.ErrNotFound

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrLLMNotConfigured is returned by operations that need an LLM when the
	// client was built without one.
	ErrLLMNotConfigured = errors.New("llm not configured")
)

// MemoryError wraps errors with operation context.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "Store",
//	    Err: ErrValidation,
//	}
//	// Error() returns: "brainmem: Store: validation failed"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "brainmem: <Op>: <Err>"
func (e *MemoryError) Error() string {
	return fmt.Sprintf("brainmem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemoryError("Store", err)
//	}
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}

func invalidConfig(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
