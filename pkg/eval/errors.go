package eval

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an evaluation error for the CLI's reporting and any
// caller retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary resolver failure that may
	// succeed on retry. Examples: source fetch timeouts.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: duplicate input identifier, undefined package reference,
	// missing revision.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error codes for programmatic handling.
const (
	ErrCodeDuplicateInput = "DUPLICATE_INPUT"
	ErrCodeUnknownInput   = "UNKNOWN_INPUT"
	ErrCodeResolve        = "RESOLVE_FAILED"
	ErrCodeOverlay        = "OVERLAY_FAILED"
	ErrCodeUndefined      = "UNDEFINED_PACKAGE"
	ErrCodeNoSuchOutput   = "NO_SUCH_OUTPUT"
	ErrCodeValidation     = "VALIDATION_FAILED"
)

// EvalError is a classified evaluation error with context. Every failure is
// fatal to the evaluation that raised it; there is no partial output.
type EvalError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Input is the source identifier or output address involved, if any.
	Input string `json:"input,omitempty"`

	// Platform is the platform being evaluated when the error occurred.
	Platform Platform `json:"platform,omitempty"`

	// Err is the underlying error, surfaced unchanged from the resolver.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Input != "" {
		msg += fmt.Sprintf(" (input=%s)", e.Input)
	}
	if e.Platform != "" {
		msg += fmt.Sprintf(" (platform=%s)", e.Platform)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EvalError) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two EvalErrors match when
// class and code agree.
func (e *EvalError) Is(target error) bool {
	var t *EvalError
	if !errors.As(target, &t) {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EvalError {
	return &EvalError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EvalError {
	return &EvalError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithCode adds an error code.
func (e *EvalError) WithCode(code string) *EvalError {
	e.Code = code
	return e
}

// WithInput adds the involved source identifier or output address.
func (e *EvalError) WithInput(input string) *EvalError {
	e.Input = input
	return e
}

// WithPlatform adds the platform being evaluated.
func (e *EvalError) WithPlatform(platform Platform) *EvalError {
	e.Platform = platform
	return e
}
