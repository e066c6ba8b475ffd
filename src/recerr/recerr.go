// Package recerr defines the error-kind taxonomy the core and its
// orchestrator surface to callers: a stable, machine-readable Kind
// plus a human-readable message, optionally wrapping an underlying
// cause.
package recerr

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable error classification.
type Kind string

const (
	KindInputInvalid              Kind = "InputInvalid"
	KindConfigInvalid             Kind = "ConfigInvalid"
	KindUpstreamUnavailable       Kind = "UpstreamUnavailable"
	KindUpstreamTimeout           Kind = "UpstreamTimeout"
	KindDimensionMismatch         Kind = "DimensionMismatch"
	KindSessionNotFound           Kind = "SessionNotFound"
	KindInternalInvariantViolated Kind = "InternalInvariantViolated"
)

// Error is the concrete error type returned across the core's package
// boundaries. Kind is stable and intended for programmatic dispatch
// (HTTP status mapping, retry policy); Msg is a human-readable
// description that never exposes internal field names.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error wrapping err, following the module-wide
// fmt.Errorf("...: %w", err) convention used across the provider
// backends.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is supports errors.Is(err, recerr.Sentinel(kind))-style checks: it
// reports a match when the target is also an *Error with the same Kind,
// whatever the two messages say.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel returns a comparable *Error carrying only a Kind, suitable
// for errors.Is(err, recerr.Sentinel(recerr.KindSessionNotFound)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Is reports whether err is, or wraps, an *Error of the given Kind.
// It's a shorthand for errors.Is(err, recerr.Sentinel(kind)) used
// throughout the test suite.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
