// Package apperr implements the closed error taxonomy of spec.md §7:
// Validation, Authorization, State, Conflict, Transient, Protocol.
// Callers match on Code via errors.As instead of string comparison.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the six taxonomy buckets.
type Code string

const (
	Validation   Code = "invalid_input"
	Authorization Code = "not_found" // caller acted on an order it doesn't own; surfaced as not_found per spec.md §4.1
	State        Code = "immutable"
	Conflict     Code = "limit_exceeded"
	Transient    Code = "internal"
	Protocol     Code = "protocol"
)

// Error is a typed, wrapped application error.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a taxonomy error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a taxonomy error around an underlying cause, preserving
// it for errors.Is/As chains the way pkg/errors.Wrap does elsewhere in
// the corpus.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: errors.Wrap(cause, message)}
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Convenience constructors used throughout OBS and ME.

func Invalid(format string, args ...interface{}) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(Authorization, fmt.Sprintf(format, args...))
}

func Immutable(format string, args ...interface{}) *Error {
	return New(State, fmt.Sprintf(format, args...))
}

func LimitExceeded(format string, args ...interface{}) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func Internal(cause error, format string, args ...interface{}) *Error {
	return Wrap(Transient, fmt.Sprintf(format, args...), cause)
}

func ProtocolErr(format string, args ...interface{}) *Error {
	return New(Protocol, fmt.Sprintf(format, args...))
}
