package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict marks unique-key or optimistic concurrency failures.
	ErrConflict = errors.New("conflict")
	// ErrRetryable marks transient storage failures (deadlocks, lock timeouts, cancellations).
	ErrRetryable = errors.New("retryable")
	// ErrPrecondition marks writes that reference rows which no longer exist.
	ErrPrecondition = errors.New("precondition failed")
)
