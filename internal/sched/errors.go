package sched

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned synchronously when a predicate or a task
	// is constructed from malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnrecognizedYield marks a task whose step produced a result the
	// scheduler cannot interpret. Only that task is terminated.
	ErrUnrecognizedYield = errors.New("unrecognized yield")

	// ErrTaskPanic marks a task whose step panicked.
	ErrTaskPanic = errors.New("task panicked")

	// ErrReentrancy is returned when Tick is invoked while a tick is already in progress.
	ErrReentrancy = errors.New("scheduler re-entered")

	// ErrInvariant reports broken scheduler bookkeeping. The current tick is aborted.
	ErrInvariant = errors.New("scheduler invariant violated")

	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("scheduler is shut down")
)

// ArgumentError describes a rejected constructor argument.
type ArgumentError struct {
	Op     string
	Field  string
	Value  any
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid %s=%v (%s)", e.Op, e.Field, e.Value, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidArgument.
func (e *ArgumentError) Unwrap() error { return ErrInvalidArgument }

func invalidArg(op, field string, value any, reason string) error {
	return &ArgumentError{Op: op, Field: field, Value: value, Reason: reason}
}

// IsFatal reports whether err must stop the host loop rather than be logged and ignored.
func IsFatal(err error) bool {
	return errors.Is(err, ErrReentrancy) || errors.Is(err, ErrInvariant)
}
