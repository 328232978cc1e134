package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure so the transport layer can map it to a
// status code without string matching.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindForbidden    Kind = "FORBIDDEN"
	KindInvalidState Kind = "INVALID_STATE"
	KindInvalidInput Kind = "INVALID_INPUT"
	KindConflict     Kind = "CONFLICT"
)

// Error is a typed domain error. The message names the specific precondition
// that failed and is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Wrap attaches an underlying cause while keeping the domain kind.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: err}
}

// KindOf returns the kind of err if it is a domain error, or "" otherwise.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
