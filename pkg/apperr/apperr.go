// Package apperr classifies domain errors into the kinds the API and callers act on.
package apperr

import (
	"errors"
	"strings"
)

// Kind is the coarse classification of an error.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindPreconditionFailed Kind = "precondition_failed"
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal_error"
)

// Kind sentinels. errors.Is(err, ErrValidation) is true for every validation error.
var (
	ErrValidation         = &Error{Kind: KindValidation, Code: string(KindValidation)}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed, Code: string(KindPreconditionFailed)}
	ErrConflict           = &Error{Kind: KindConflict, Code: string(KindConflict)}
	ErrNotFound           = &Error{Kind: KindNotFound, Code: string(KindNotFound)}
)

// Error is a classified error. Code is a stable snake_case identifier.
type Error struct {
	Kind    Kind
	Code    string
	Message string

	cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches kind sentinels against any error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	if t.isKindSentinel() {
		return e.Kind == t.Kind
	}
	return false
}

func (e *Error) isKindSentinel() bool {
	return e.Code == string(e.Kind) && e.cause == nil
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: strings.TrimSpace(code), Message: message}
}

func Validation(code, message string) *Error { return newError(KindValidation, code, message) }

func PreconditionFailed(code, message string) *Error {
	return newError(KindPreconditionFailed, code, message)
}

func Conflict(code, message string) *Error { return newError(KindConflict, code, message) }

func NotFound(code, message string) *Error { return newError(KindNotFound, code, message) }

// WithMessage returns a copy of a classified sentinel carrying a request-specific reason.
// errors.Is still matches the original sentinel.
func WithMessage(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: err.Kind, Code: err.Code, Message: message, cause: err}
}

// Wrap classifies an arbitrary error, e.g. a storage conflict.
func Wrap(kind Kind, code string, cause error) *Error {
	e := newError(kind, code, "")
	e.cause = cause
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

// KindOf returns the kind of err, or KindInternal when it is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or "internal_error".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return string(KindInternal)
}

// MessageOf returns the human readable reason attached to err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e != nil {
		if e.Message != "" {
			return e.Message
		}
		return strings.ReplaceAll(e.Code, "_", " ")
	}
	return "internal server error"
}
