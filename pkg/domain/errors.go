package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrCheckpointNotFound is returned when a checkpoint ID cannot be found in the store.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// ErrThreadBusy is returned when a turn cannot acquire its thread in time.
var ErrThreadBusy = errors.New("thread busy")

// ErrLockLost reports that a distributed lock expired or changed owner while
// it was held, so another replica may have run the same thread.
var ErrLockLost = errors.New("distributed lock lost")

// TransientError marks a failure that may succeed on retry: timeouts,
// rate limits, temporarily unavailable collaborators.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err should be retried. Per-call deadlines count
// as transient; cancellation does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ConfigurationError reports a malformed graph: unknown route targets,
// missing nodes or undeclared routing functions. It is raised at build time
// and never retried.
type ConfigurationError struct {
	Node   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Node == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error at node %q: %s", e.Node, e.Reason)
}

// ValidationError reports a violated state invariant, such as reducing with
// chunks still pending or a node writing a field it does not own. It aborts
// the turn.
type ValidationError struct {
	Node   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Node == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error at node %q: %s", e.Node, e.Reason)
}

// PartialFailure is returned by a node that produced usable but incomplete
// results, or by the engine when a node exhausted its retries. The turn
// continues in degraded mode.
type PartialFailure struct {
	Node string
	Err  error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("partial failure at node %q: %v", e.Node, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

// Partial wraps err as a PartialFailure for node. A nil err stays nil.
func Partial(node string, err error) error {
	if err == nil {
		return nil
	}
	return &PartialFailure{Node: node, Err: err}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConfiguration reports whether err is or wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsPartial reports whether err is or wraps a PartialFailure.
func IsPartial(err error) bool {
	var pf *PartialFailure
	return errors.As(err, &pf)
}
