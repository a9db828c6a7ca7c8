// Package apperror defines the error type that carries an HTTP status code
// from the failure site to the response boundary.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	AuthenticationFailure Kind = "authentication_failure"
	NotFound              Kind = "not_found"
	BadRequest            Kind = "bad_request"
	HandlerFailure        Kind = "handler_failure"
	AggregateExhaustion   Kind = "aggregate_exhaustion"
)

// Error is a failure tagged with a status code and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error without a cause.
func New(kind Kind, message string, code int) *Error {
	return &Error{Kind: kind, Message: message, Code: code}
}

// Wrap creates an Error around cause. A zero code falls back to the default
// code of kind.
func Wrap(cause error, kind Kind, message string, code int) *Error {
	if code == 0 {
		code = DefaultCode(kind)
	}
	return &Error{Kind: kind, Message: message, Code: code, Cause: cause}
}

// NewRepositoryHandlerError reports a failure while handling repository
// events. It defaults to 404.
func NewRepositoryHandlerError(message string, cause error) *Error {
	return &Error{Kind: NotFound, Message: message, Code: http.StatusNotFound, Cause: cause}
}

// NotFoundf creates a NotFound error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...), http.StatusNotFound)
}

// BadRequestf creates a BadRequest error with a formatted message.
func BadRequestf(format string, args ...any) *Error {
	return New(BadRequest, fmt.Sprintf(format, args...), http.StatusBadRequest)
}

// Exhausted reports that every alternative in a first-success chain failed.
// The code and cause of the last failure are kept.
func Exhausted(message string, last error) *Error {
	return Wrap(last, AggregateExhaustion, message, StatusCode(last))
}

// DefaultCode is the status used for kind when none is declared.
func DefaultCode(kind Kind) int {
	switch kind {
	case AuthenticationFailure, BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// StatusCode returns the code of the outermost *Error in err's chain, or 500.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// HandlerFailure for any other error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return HandlerFailure
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
