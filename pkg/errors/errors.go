// Package errors gives internal components a typed error with a Kind for
// branching and a cause chain for logging, adapted from the teacher's
// RFC 7807 package and trimmed to this domain's `{"error": "<string>"}`
// wire contract (spec.md §7).
package errors

import (
	"errors"
	"fmt"
)

// Standard library passthroughs, kept so callers use one import for error
// handling the way the teacher's pkg/errors does.
var (
	Is     = errors.Is
	As     = errors.As
	Join    = errors.Join
	Unwrap = errors.Unwrap
	New    = errors.New
)

// Kind classifies an Error for callers that need to branch without string
// matching (HTTP status mapping, retry policy, etc).
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"
	KindUnavailable   Kind = "UNAVAILABLE"
	KindInternal      Kind = "INTERNAL"
)

// Error is the internal error type threaded through the engine's
// components. Render below puts only Message on the wire; Error() appends
// the cause's text, and Kind is for internal branching/logging.
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

func (e *Error) Unwrap() error { return e.cause }

// Wrap creates an Error of kind wrapping cause with message.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// NewKind mirrors Wrap without a cause; named to avoid colliding with the
// errors.New passthrough above.
func NewKind(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Render flattens err to the wire contract spec.md §7 requires:
// {"error": "<string>"}. Non-*Error values render their Error() string
// verbatim.
func Render(err error) map[string]string {
	if err == nil {
		return map[string]string{"error": ""}
	}
	var e *Error
	if As(err, &e) {
		return map[string]string{"error": e.Message}
	}
	return map[string]string{"error": err.Error()}
}

// StatusFor maps a Kind to the HTTP status code the surface should return.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindUnavailable:
		return 503
	default:
		return 500
	}
}
