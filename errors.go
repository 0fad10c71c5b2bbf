package aegis

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error kind constants for classification and matching
const (
	// KindDelivery indicates the hand-off from the external queue to the
	// relay failed. Recovered by nack and external redelivery; never fatal.
	KindDelivery = "delivery_failure"

	// KindNodeExecution indicates a workflow node's collaborator call failed
	// or timed out. The engine halts graph progression for the thread and
	// persists the failure; retry is redelivery-driven.
	KindNodeExecution = "node_execution_failure"

	// KindAdmission indicates a deliberate rejection by the budget guard,
	// not a fault. New work is refused until the cooldown elapses.
	KindAdmission = "admission_lockdown"

	// KindTimeout indicates a call exceeded its deadline. Timed-out node
	// executions are treated as node failures, not silent successes.
	KindTimeout = "timeout"

	// KindConfiguration indicates missing required settings or an
	// uninitialized pool. Fatal at startup.
	KindConfiguration = "configuration_failure"
)

// Error is a structured error with classification. It supports Go's error
// wrapping patterns with Unwrap().
type Error struct {
	Kind     string `json:"kind"`
	Cause    string `json:"cause"`
	ThreadID string `json:"thread_id,omitempty"`
	Wrapped  error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.ThreadID != "" {
		return fmt.Sprintf("%s (thread %s): %s", e.Kind, e.ThreadID, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

// Unwrap implements the error unwrapping interface for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// NewError creates a new classified error
func NewError(kind, cause string) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// WrapError wraps an existing error with a classification and thread ID
func WrapError(kind, threadID string, err error) *Error {
	return &Error{Kind: kind, Cause: err.Error(), ThreadID: threadID, Wrapped: err}
}

// Classify attempts to classify a regular error into an *Error. Deadline and
// cancellation errors become KindTimeout; everything else defaults to a node
// execution failure.
func Classify(err error) *Error {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return &Error{Kind: KindTimeout, Cause: err.Error(), Wrapped: err}
	}
	return &Error{Kind: KindNodeExecution, Cause: err.Error(), Wrapped: err}
}

// IsKind reports whether an error classifies to the given kind
func IsKind(err error, kind string) bool {
	if err == nil {
		return false
	}
	return Classify(err).Kind == kind
}
