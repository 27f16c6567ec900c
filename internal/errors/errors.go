// Package errors defines the typed error taxonomy used throughout the offloader.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is an offloader error with a machine-readable code, a human-readable
// message and the HTTP status the API layer maps it to. An Error may wrap a
// lower-level cause.
type Error struct {
	// Code is the stable error code (e.g., "NotConfigured", "AssetNotFound").
	Code string
	// Message is a human-readable description of the error.
	Message string
	// HTTPStatus is the HTTP status code to return (e.g., 404, 409).
	HTTPStatus int

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same code, so that a
// wrapped or re-messaged copy still matches its predefined sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Status returns the HTTP status for err. Non-*Error values map to 500.
func Status(err error) int {
	var oe *Error
	if stderrors.As(err, &oe) {
		return oe.HTTPStatus
	}
	return 500
}

// Is is errors.Is, re-exported so callers importing this package under the
// name "errors" need not import the standard library package as well.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is errors.As, re-exported for the same reason as Is.
func As(err error, target any) bool { return stderrors.As(err, target) }

// New is errors.New, re-exported for the same reason as Is.
func New(text string) error { return stderrors.New(text) }

// Pre-defined errors for common conditions.
var (
	// ErrNotConfigured is returned when object store credentials or the public
	// base URL are missing.
	ErrNotConfigured = &Error{
		Code:       "NotConfigured",
		Message:    "Object storage is not configured",
		HTTPStatus: 412,
	}

	// ErrInvalidOperation is returned for an unknown operation name.
	ErrInvalidOperation = &Error{
		Code:       "InvalidOperation",
		Message:    "Unknown operation",
		HTTPStatus: 400,
	}

	// ErrInvalidArgument is returned for malformed offsets, page sizes or ids.
	ErrInvalidArgument = &Error{
		Code:       "InvalidArgument",
		Message:    "Invalid argument",
		HTTPStatus: 400,
	}

	// ErrAssetNotFound is returned when no catalog record exists for an asset.
	ErrAssetNotFound = &Error{
		Code:       "AssetNotFound",
		Message:    "The specified asset does not exist",
		HTTPStatus: 404,
	}

	// ErrNoPrimaryFile is returned when an asset record has no primary path.
	ErrNoPrimaryFile = &Error{
		Code:       "NoPrimaryFile",
		Message:    "The asset has no primary file",
		HTTPStatus: 422,
	}

	// ErrOperationConflict is returned when another operation's pass is live.
	ErrOperationConflict = &Error{
		Code:       "OperationConflict",
		Message:    "Another operation is in progress",
		HTTPStatus: 409,
	}

	// ErrPageSizeChanged is returned when a step's page size differs from the
	// size pinned by the running pass.
	ErrPageSizeChanged = &Error{
		Code:       "PageSizeChanged",
		Message:    "Page size changed mid-pass; restart from offset 0",
		HTTPStatus: 409,
	}

	// ErrCatalogUnavailable is returned when a catalog query fails.
	ErrCatalogUnavailable = &Error{
		Code:       "CatalogUnavailable",
		Message:    "The catalog is unavailable",
		HTTPStatus: 503,
	}

	// ErrUnauthorized is returned when the API token is missing or wrong.
	ErrUnauthorized = &Error{
		Code:       "Unauthorized",
		Message:    "Missing or invalid API token",
		HTTPStatus: 401,
	}

	// ErrObjectNotFound is returned by object stores when a key does not exist.
	ErrObjectNotFound = &Error{
		Code:       "ObjectNotFound",
		Message:    "The specified object does not exist",
		HTTPStatus: 404,
	}

	// ErrInternal is returned for unexpected server-side failures.
	ErrInternal = &Error{
		Code:       "InternalError",
		Message:    "We encountered an internal error. Please try again.",
		HTTPStatus: 500,
	}
)
