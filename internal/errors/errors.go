// Package errors provides the service's coded error type. Every error that
// crosses a package boundary carries a Code so transports can map it to a
// status without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for transport mapping.
type Code string

const (
	ErrCodeInternal     Code = "INTERNAL"
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeConflict     Code = "CONFLICT"
	ErrCodeUnauthorized Code = "UNAUTHORIZED"
	ErrCodeForbidden    Code = "FORBIDDEN"
	ErrCodeLocked       Code = "LOCKED"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode implements the coder interface consulted by CodeOf.
func (e *Error) ErrorCode() Code { return e.Code }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

// InvalidInput reports a rejected request field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Field: field, Message: fmt.Sprintf("invalid %s: %s", field, message)}
}

// CodeOf returns the code of the outermost coded error in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) Code {
	var coder interface{ ErrorCode() Code }
	if stderrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ErrCodeInternal
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }
