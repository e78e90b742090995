package apperrors

import (
	"errors"
	"time"
)

// Kind classifies an error for the HTTP layer.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindCast           Kind = "CastError"
	KindDuplicateKey   Kind = "DuplicateError"
	KindAuthentication Kind = "AuthenticationError"
	KindUnauthorized   Kind = "UnauthorizedError"
	KindForbidden      Kind = "ForbiddenError"
	KindNotFound       Kind = "NotFoundError"
	KindConflict       Kind = "ConflictError"
	KindRateLimit      Kind = "RateLimitError"
	KindFileUpload     Kind = "FileUploadError"
	KindInternal       Kind = "InternalError"
)

// Error is the typed error raised by services and translated by the
// central error handler.
type Error struct {
	Kind       Kind
	Message    string
	Field      string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithField names the offending input field.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// Wrap attaches the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(message string) *Error     { return newError(KindValidation, message) }
func Cast(message string) *Error           { return newError(KindCast, message) }
func Authentication(message string) *Error { return newError(KindAuthentication, message) }
func Unauthorized(message string) *Error   { return newError(KindUnauthorized, message) }
func Forbidden(message string) *Error      { return newError(KindForbidden, message) }
func NotFound(message string) *Error       { return newError(KindNotFound, message) }
func FileUpload(message string) *Error     { return newError(KindFileUpload, message) }
func Internal(err error) *Error            { return &Error{Kind: KindInternal, Message: "Internal Server Error", Err: err} }

func Conflict(field, message string) *Error {
	return &Error{Kind: KindConflict, Message: message, Field: field}
}

func DuplicateKey(field string) *Error {
	return &Error{Kind: KindDuplicateKey, Message: "A record with this " + field + " already exists", Field: field}
}

func RateLimited(window time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Message:    "Too many requests from this IP, please try again later.",
		RetryAfter: window,
	}
}

// As extracts the typed error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindInternal when untyped.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
