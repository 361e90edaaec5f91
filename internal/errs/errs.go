// Package errs is the structured error type of the predictor and the two
// job-level failure policies built on it.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and alerting decisions.
type Kind string

const (
	// KindTransient marks failures expected to clear on retry (network,
	// upstream 5xx, timeouts).
	KindTransient Kind = "transient"
	// KindPermanent marks failures retrying cannot fix (4xx, bad slug).
	KindPermanent Kind = "permanent"
	// KindParse marks malformed upstream payloads.
	KindParse Kind = "parse"
	// KindStore marks document store failures.
	KindStore Kind = "store"
	// KindLogic marks internal invariant violations.
	KindLogic Kind = "logic"
)

// Error carries the failure kind, the operation that failed, and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by kind, so errors.Is(err, &Error{Kind: KindTransient})
// classifies without caring about op or cause.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an Error with the given kind and operation.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Transient wraps cause as a retryable failure of op.
func Transient(op string, cause error) *Error { return New(KindTransient, op, cause) }

// Permanent wraps cause as a non-retryable failure of op.
func Permanent(op string, cause error) *Error { return New(KindPermanent, op, cause) }

// Parse wraps cause as a malformed-payload failure of op.
func Parse(op string, cause error) *Error { return New(KindParse, op, cause) }

// Store wraps cause as a document-store failure of op.
func Store(op string, cause error) *Error { return New(KindStore, op, cause) }

// Logic wraps cause as an internal invariant violation in op.
func Logic(op string, cause error) *Error { return New(KindLogic, op, cause) }

// KindOf extracts the kind from an error chain. Errors outside the chain's
// typed portion report KindLogic.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindLogic
}

// IsTransient reports whether the error chain carries a transient failure.
func IsTransient(err error) bool {
	return errors.Is(err, &Error{Kind: KindTransient})
}
