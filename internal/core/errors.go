package core

import (
	"context"
	"errors"
)

var (
	// ErrInvalidInput: the input is neither an identifier nor a name, or a
	// name resolved to something that is not a valid identifier.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnresolved: the resolution endpoint holds no mapping for the name.
	ErrUnresolved = errors.New("unresolved")
	// ErrResolutionTransport: the resolution request itself failed.
	ErrResolutionTransport = errors.New("transport-error")
	// ErrEmptyRegistry: there is nothing to fan out to.
	ErrEmptyRegistry = errors.New("empty ledger registry")
)

// ErrorKind groups session-level failures.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindInput      ErrorKind = "input"
	KindResolution ErrorKind = "resolution"
	KindAggregate  ErrorKind = "aggregate"
)

// KindOf classifies a session-level error.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInput
	case errors.Is(err, ErrUnresolved), errors.Is(err, ErrResolutionTransport):
		return KindResolution
	default:
		return KindAggregate
	}
}

// Reason returns the short, user-facing reason for a session-level error.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return ErrInvalidInput.Error()
	case errors.Is(err, ErrUnresolved):
		return ErrUnresolved.Error()
	case errors.Is(err, ErrResolutionTransport):
		return ErrResolutionTransport.Error()
	case errors.Is(err, ErrEmptyRegistry):
		return ErrEmptyRegistry.Error()
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return err.Error()
	}
}
