// Package dom defines the error taxonomy every Televent component returns
// through, and the single mapping from that taxonomy to HTTP status codes.
package dom

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the closed set of error classes §7 of the spec names. Every
// fallible operation in Televent returns an error wrapping one of these
// rather than an ad-hoc error string, so the engine can translate it to the
// right wire response without inspecting error text.
type Kind int

const (
	Internal Kind = iota
	Unauthenticated
	NotFound
	PreconditionFailed
	Conflict
	Invalid
	PayloadTooLarge
	RetainFull
	Transient
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case NotFound:
		return "not_found"
	case PreconditionFailed:
		return "precondition_failed"
	case Conflict:
		return "conflict"
	case Invalid:
		return "invalid"
	case PayloadTooLarge:
		return "payload_too_large"
	case RetainFull:
		return "retain_full"
	case Transient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is the concrete error type carried by Kind. Msg is the short,
// non-leaky, human-readable reason surfaced to the client; Cause is the
// underlying error logged with a correlation id but never written to the
// response body.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }

// Wrap builds an *Error of the given kind around a lower-level cause.
func Wrap(k Kind, msg string, cause error) *Error { return &Error{Kind: k, Msg: msg, Cause: cause} }

// As extracts a *Error from err, if any exists in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind carried by err, or Internal if err does not wrap
// a *Error. Invariant-protection paths (§7) rely on this default: any error
// that was not explicitly classified is treated as an unrecoverable bug.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// HTTPStatus is the single table translating a Kind to the status code §7
// of the spec assigns it.
func HTTPStatus(k Kind) int {
	switch k {
	case Unauthenticated:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case PreconditionFailed:
		return http.StatusPreconditionFailed
	case Conflict:
		return http.StatusConflict
	case Invalid:
		return http.StatusBadRequest
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case RetainFull:
		return http.StatusInsufficientStorage
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
