// Package errors provides the structured error type shared across the
// orchestrator's modules.
//
// ContextualError records which component failed doing what, with an
// optional upstream status code and structured details. It implements error
// and Unwrap, so sentinel checks with errors.Is keep working through it.
//
// Usage:
//
//	err := errors.New("store", "Put", cause).
//		WithDetails(map[string]any{"conference_id": id})
//	err := errors.Upstream("completion", "Complete", 502, cause)
package errors

import "fmt"

// ContextualError carries consistent failure context across modules.
type ContextualError struct {
	// Component identifies the module that produced the error
	// (e.g. "store", "completion", "lifecycle", "ratelimit").
	Component string

	// Operation describes what was being done when the error occurred.
	Operation string

	// StatusCode is the upstream HTTP status for remote-call failures,
	// zero otherwise.
	StatusCode int

	// Details holds optional structured metadata (entity ids and the like).
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// New creates a ContextualError with the given component, operation, and cause.
func New(component, operation string, cause error) *ContextualError {
	return &ContextualError{
		Component: component,
		Operation: operation,
		Cause:     cause,
	}
}

// Upstream creates a ContextualError for a failed remote call, recording the
// upstream status code.
func Upstream(component, operation string, statusCode int, cause error) *ContextualError {
	return New(component, operation, cause).WithStatusCode(statusCode)
}

// Error returns a human-readable representation of the error.
func (e *ContextualError) Error() string {
	base := fmt.Sprintf("[%s] %s", e.Component, e.Operation)

	if e.StatusCode != 0 {
		base += fmt.Sprintf(" (status %d)", e.StatusCode)
	}

	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}

	return base
}

// Unwrap returns the underlying cause, enabling use with errors.Is and errors.As.
func (e *ContextualError) Unwrap() error {
	return e.Cause
}

// WithStatusCode sets the upstream status code and returns the error.
func (e *ContextualError) WithStatusCode(code int) *ContextualError {
	e.StatusCode = code
	return e
}

// WithDetails sets the details map and returns the error.
func (e *ContextualError) WithDetails(details map[string]any) *ContextualError {
	e.Details = details
	return e
}
