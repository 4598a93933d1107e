package manifest

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the class of manifest failure. All manifest errors
// are fatal for the build; the code exists for programmatic handling and
// test assertions, not for retry logic.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the manifest file does not exist in the
	// build-output directory.
	ErrCodeNotFound ErrorCode = "MANIFEST_NOT_FOUND"

	// ErrCodeParse indicates the manifest file exists but is not valid JSON.
	ErrCodeParse ErrorCode = "MANIFEST_PARSE_ERROR"

	// ErrCodeValidation indicates the manifest decoded but violates the
	// structural requirements (origins, behaviors, default origin).
	ErrCodeValidation ErrorCode = "MANIFEST_VALIDATION_ERROR"
)

// Error is a classified manifest error with optional path context.
type Error struct {
	// Code is the error classification.
	Code ErrorCode `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Path is the manifest file path, if known.
	Path string `json:"path,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s (path=%s): %v", e.Code, e.Message, e.Path, e.Err)
		}
		return fmt.Sprintf("[%s] %s (path=%s)", e.Code, e.Message, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// newError creates a classified manifest error.
func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithPath adds file path context to an error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// IsNotFound returns true if the error indicates a missing manifest file.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsParseError returns true if the error indicates malformed manifest JSON.
func IsParseError(err error) bool {
	return hasCode(err, ErrCodeParse)
}

// IsValidationError returns true if the error indicates a structurally
// invalid manifest.
func IsValidationError(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
