// Package errs defines the failure taxonomy shared by the gateway, the
// protocol adapters, the accumulator and the repair engine.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindBadRequest         Kind = "bad_request"
	KindUpstreamAuth       Kind = "upstream_auth"
	KindUpstreamProtocol   Kind = "upstream_protocol"
	KindUpstreamOpaque     Kind = "upstream_opaque"
	KindStreamDisconnected Kind = "stream_disconnected"
	KindTruncatedPayload   Kind = "truncated_payload"
	KindMalformedPayload   Kind = "malformed_payload"
)

// Error is a classified failure. Message is safe to show to callers.
type Error struct {
	Kind    Kind
	Message string
	// Status is the upstream HTTP status when the failure came from a backend.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// BadRequest reports a missing or invalid request field.
func BadRequest(format string, args ...any) *Error {
	return Newf(KindBadRequest, format, args...)
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto the status returned to gateway callers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUpstreamAuth:
		return http.StatusUnauthorized
	case KindUpstreamProtocol, KindUpstreamOpaque, KindStreamDisconnected:
		return http.StatusBadGateway
	case KindTruncatedPayload, KindMalformedPayload:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
