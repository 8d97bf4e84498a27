package engine

import (
	"errors"
	"fmt"
)

// EvalError is an error raised while evaluating a script.
//
// The message is what the script author sees; Code lets callers such as
// the CLI classify failures without parsing text.
type EvalError struct {
	// Code identifies the error category.
	Code EvalErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// EvalErrorCode categorizes evaluation errors.
type EvalErrorCode string

const (
	// ErrCodeArgShape indicates a builtin or function was called with the
	// wrong number or kind of arguments.
	ErrCodeArgShape EvalErrorCode = "ARG_SHAPE"

	// ErrCodeResolution indicates an unknown variable, canister or method
	// signature that was required.
	ErrCodeResolution EvalErrorCode = "RESOLUTION"

	// ErrCodeTransport indicates a replica, file or subprocess failure.
	ErrCodeTransport EvalErrorCode = "TRANSPORT"

	// ErrCodeSemantic indicates a type mismatch, duplicate label or other
	// invalid operation on well-formed arguments.
	ErrCodeSemantic EvalErrorCode = "SEMANTIC"

	// ErrCodeAssertion indicates a failed assert or an expected failure
	// that did not happen.
	ErrCodeAssertion EvalErrorCode = "ASSERTION"
)

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *EvalError) Unwrap() error { return e.Err }

// CodeOf returns the category of err, or "" when err carries none.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) EvalErrorCode {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsAssertion reports whether err is a failed assertion.
func IsAssertion(err error) bool {
	return CodeOf(err) == ErrCodeAssertion
}

func newError(code EvalErrorCode, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code EvalErrorCode, err error, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func argShape(format string, args ...any) error {
	return newError(ErrCodeArgShape, format, args...)
}

func semantic(format string, args ...any) error {
	return newError(ErrCodeSemantic, format, args...)
}

// transport tags err as a transport failure unless it already has a code.
func transport(err error) error {
	if err == nil || CodeOf(err) != "" {
		return err
	}
	return &EvalError{Code: ErrCodeTransport, Err: err}
}
