// Package apperr defines the application error taxonomy shared by the
// authorization, rate-limit, idempotency and reservation layers. Handlers
// map kinds to transport status codes via pkg/response.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an application error.
type Kind int

const (
	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = iota
	// KindInvalid indicates malformed input.
	KindInvalid
	// KindUnauthenticated indicates a missing or invalid session.
	KindUnauthenticated
	// KindForbidden indicates insufficient role rank.
	KindForbidden
	// KindNotFound indicates a missing record within the caller's tenant.
	KindNotFound
	// KindNotFoundOrForbidden is returned for cross-tenant access so the
	// response does not reveal whether the resource exists.
	KindNotFoundOrForbidden
	// KindAlreadyRegistered indicates an active reservation already exists.
	KindAlreadyRegistered
	// KindCapacityRaceRetry is a transient serialization conflict; retried
	// internally, never surfaced to callers.
	KindCapacityRaceRetry
	// KindBusy is surfaced when transient retries are exhausted.
	KindBusy
	// KindRateLimited indicates the caller exceeded a request window.
	KindRateLimited
	// KindDuplicateInFlight indicates a concurrent request with the same
	// idempotency key has not committed yet.
	KindDuplicateInFlight
	// KindConstraintViolation indicates a storage constraint rejected a
	// write after the preceding checks passed.
	KindConstraintViolation
)

// Error carries a kind, a caller-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is set for KindRateLimited so handlers can emit a hint.
	RetryAfter time.Duration
	cause      error
}

// E creates an Error with the given kind and message.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Ef creates an Error with a formatted message.
func Ef(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the Kind from err, or KindInternal when err is not an
// *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
