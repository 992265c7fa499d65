package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed generation call. Exactly one kind is
// attached to every error surfaced by this package and its subpackages.
type ErrorKind string

const (
	// ErrValidation is a malformed or missing caller-supplied parameter,
	// detected before any network call.
	ErrValidation ErrorKind = "VALIDATION"
	// ErrConfiguration means no usable model could be resolved.
	ErrConfiguration ErrorKind = "CONFIGURATION"
	// ErrTransport is a DNS/connect/timeout failure reaching the provider.
	ErrTransport ErrorKind = "TRANSPORT"
	// ErrUpstreamMisconfiguration means the provider returned an HTML page
	// instead of JSON (wrong URL, proxy error, auth gateway).
	ErrUpstreamMisconfiguration ErrorKind = "UPSTREAM_MISCONFIGURATION"
	// ErrInvalidResponseFormat means the body was neither JSON nor short
	// enough to treat as a plain-text error message.
	ErrInvalidResponseFormat ErrorKind = "INVALID_RESPONSE_FORMAT"
	// ErrUnknownResponseFormat means the body parsed as JSON but matched
	// no recognized success shape.
	ErrUnknownResponseFormat ErrorKind = "UNKNOWN_RESPONSE_FORMAT"
	// ErrProvider is a structured error payload or non-2xx status from
	// the upstream provider.
	ErrProvider ErrorKind = "PROVIDER"
	// ErrImageNotFound means a 2xx JSON response carried no recognizable
	// image payload.
	ErrImageNotFound ErrorKind = "IMAGE_NOT_FOUND"
)

// Error is the single error type surfaced to callers of the client.
// Message is the only detail exposed; Cause is kept for logging.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with the given kind and message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates an Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches the underlying cause and returns the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// KindOf extracts the ErrorKind from err, unwrapping as needed.
// Errors that never passed through this package return an empty kind.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
