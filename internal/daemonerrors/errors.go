// Package daemonerrors is the error taxonomy spec.md section 7 names:
// Validation, Auth, NotFound, PolicyDenied, Timeout, Transient, Fatal.
// Grounded on internal/agent.ToolError's Type-enum-plus-wrapped-Cause shape
// and internal/retry's PermanentError/IsPermanent split between retryable
// and terminal failures, narrowed to the spec's seven kinds instead of the
// teacher's tool-specific classification.
package daemonerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the seven error kinds spec.md section 7 names.
type Kind string

const (
	Validation   Kind = "validation"
	Auth         Kind = "auth"
	NotFound     Kind = "not_found"
	PolicyDenied Kind = "policy_denied"
	Timeout      Kind = "timeout"
	Transient    Kind = "transient"
	Fatal        Kind = "fatal"
)

// Retryable reports whether an error of this kind may reasonably be
// retried by its own layer (never by the Run Executor itself, per
// spec.md section 7's "never retried by the executor").
func (k Kind) Retryable() bool {
	return k == Transient
}

// Error is a structured daemon error: a Kind plus an optional wrapped
// cause. Callers match on Kind via errors.As, not string comparison.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err is a daemonerrors.Error of kind k.
func Is(err error, k Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == k
	}
	return false
}

// As extracts the *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
