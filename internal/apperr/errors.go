// Package apperr defines the error kinds every operation in the service
// resolves to. Handlers map kinds to HTTP statuses; nothing below the HTTP
// layer imports echo.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindCapability is an action attempted without the required tier.
	// Reported to the user, never retried.
	KindCapability Kind = "capability"
	// KindValidation is bad input rejected before any network or DB call.
	KindValidation Kind = "validation"
	// KindBackend is a failure from the database or object storage. Logged
	// and surfaced; no automatic retry.
	KindBackend Kind = "backend"
	// KindUpstream is a non-2xx or malformed response from the
	// text-generation API.
	KindUpstream Kind = "upstream"
	// KindConnectivity means the summary relay itself was unreachable.
	KindConnectivity Kind = "connectivity"
)

type Error struct {
	Kind    Kind
	Message string
	// Status carries the upstream HTTP status for KindUpstream so the relay
	// contract of passing the code through is preserved. Zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Capability(message string) *Error {
	return &Error{Kind: KindCapability, Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Backend(message string, err error) *Error {
	return &Error{Kind: KindBackend, Message: message, Err: err}
}

func Upstream(status int, message string) *Error {
	return &Error{Kind: KindUpstream, Message: message, Status: status}
}

func Connectivity(message string, err error) *Error {
	return &Error{Kind: KindConnectivity, Message: message, Err: err}
}

// KindOf reports the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether any error in err's tree has the given kind. Batch
// operations join per-item errors, so the walk descends multi-unwrap nodes
// instead of stopping at the first *Error the way errors.As does.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*Error); ok && ae.Kind == kind {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if IsKind(e, kind) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return IsKind(x.Unwrap(), kind)
	default:
		return false
	}
}
