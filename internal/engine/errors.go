package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures for callers. The transport layer maps
// kinds to status codes; internal stack traces never leak past this type.
type Kind string

const (
	// KindUnavailable: a dependency was never initialized. Usually absorbed
	// by a degrade path before reaching the caller.
	KindUnavailable Kind = "unavailable"

	// KindTransient: a single external call timed out or failed.
	KindTransient Kind = "transient"

	// KindInvalidInput: the request was rejected before any external call.
	KindInvalidInput Kind = "invalid_input"

	// KindIntegrity: a precondition violation such as embedding
	// dimensionality mismatch. Fatal for the request, shared state stays
	// intact.
	KindIntegrity Kind = "integrity"

	// KindInternal: everything else.
	KindInternal Kind = "internal"
)

// Error is the structured failure reported to callers.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// newError wraps cause with a kind and a caller-safe message.
func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, err: cause}
}

// KindOf extracts the kind from an error, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
