// Package topology compiles a validated build manifest into a fully wired
// graph of cloud resources. The compilation is a pure, deterministic,
// single-pass transform: origins are classified into roles, feature flags
// are resolved once, routing rules are synthesized from per-role templates,
// and resources are created in a fixed dependency-driven order with forward
// references carried as deferred values.
package topology

import (
	"errors"
	"fmt"
)

// BuildError is a classified compilation error. Every build error is fatal;
// the compiler has no retry semantics, so classification exists for
// programmatic handling and diagnostics rather than recovery.
type BuildError struct {
	// Code is the error code for programmatic handling.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Resource is the logical resource ID that caused the error, if any.
	Resource string `json:"resource,omitempty"`

	// Step is the construction step being executed when the error occurred.
	Step string `json:"step,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Step != "" {
		msg += fmt.Sprintf(" (step=%s)", e.Step)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewBuildError creates a new build error with the given code.
func NewBuildError(code, message string, err error) *BuildError {
	return &BuildError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithResource adds logical resource context to an error.
func (e *BuildError) WithResource(id LogicalID) *BuildError {
	e.Resource = string(id)
	return e
}

// WithStep adds construction-step context to an error.
func (e *BuildError) WithStep(step string) *BuildError {
	e.Step = step
	return e
}

// HasCode returns true if err is a BuildError with the given code.
func HasCode(err error, code string) bool {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Build error codes.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeDuplicate  = "DUPLICATE_RESOURCE"
	ErrCodeUnresolved = "UNRESOLVED_VALUE"
	ErrCodeProvision  = "PROVISION_FAILED"
	ErrCodeInternal   = "INTERNAL_ERROR"
)
