package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAborted is the outcome error of an aborted execution.
	ErrAborted = errors.New("command aborted")

	// ErrInvalidArgument is returned for misuse such as a nil listener, a
	// zero-size pool or an unknown flag value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned when an operation is not allowed in the
	// command's current state (executing twice, resetting while running).
	ErrInvalidState = errors.New("invalid command state")

	// ErrDisposed is returned when a disposed command is used.
	ErrDisposed = errors.New("command disposed")

	// ErrOwnership is the root of all ownership violations.
	ErrOwnership = errors.New("ownership violation")

	// ErrAlreadyOwned is returned when a command that already has an owner is
	// handed to a second composite.
	ErrAlreadyOwned = fmt.Errorf("%w: command already has an owner", ErrOwnership)

	// ErrNotOwned is returned when a composite operates on a command it does
	// not own.
	ErrNotOwned = fmt.Errorf("%w: command is not owned by this composite", ErrOwnership)

	// ErrCycle is returned when taking ownership would make a command its
	// own ancestor.
	ErrCycle = fmt.Errorf("%w: ownership cycle", ErrOwnership)

	// ErrTopLevelRequired is returned when an operation reserved for
	// top-level commands receives an owned one.
	ErrTopLevelRequired = fmt.Errorf("%w: top-level command required", ErrOwnership)

	// ErrDoubleCompletion is returned when an execution reports a second
	// terminal outcome.
	ErrDoubleCompletion = errors.New("command completed more than once")

	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("command timed out")
)

// AbortError is an abort outcome carrying diagnostic context.
// errors.Is(err, ErrAborted) holds for every AbortError.
type AbortError struct {
	Cause error
}

// Aborted returns an abort outcome with the given cause attached. A nil
// cause, or ErrAborted itself, yields the plain ErrAborted.
func Aborted(cause error) error {
	if cause == nil || cause == ErrAborted {
		return ErrAborted
	}
	return &AbortError{Cause: cause}
}

func (e *AbortError) Error() string { return "command aborted: " + e.Cause.Error() }

// Is reports ErrAborted as a match.
func (e *AbortError) Is(target error) bool { return target == ErrAborted }

// Unwrap returns the diagnostic cause.
func (e *AbortError) Unwrap() error { return e.Cause }

// ChildError attributes an outcome to a named child of a composite.
type ChildError struct {
	Child string
	Err   error
}

func (e *ChildError) Error() string { return fmt.Sprintf("command %s: %v", e.Child, e.Err) }

// Unwrap returns the child's error.
func (e *ChildError) Unwrap() error { return e.Err }

// AggregateError collects several child outcomes in the order they were
// observed.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d commands did not succeed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the constituents to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error { return e.Errors }

// TimeoutError is reported by a time-limited command whose inner command
// did not finish within Limit.
type TimeoutError struct {
	Command string
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %s timed out after %s", e.Command, e.Limit)
}

// Is reports ErrTimeout as a match.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// PolicyError reports that a decorator's own policy callback failed, as
// opposed to the decorated command.
type PolicyError struct {
	Err error
}

func (e *PolicyError) Error() string { return "policy failed: " + e.Err.Error() }

// Unwrap returns the policy's error.
func (e *PolicyError) Unwrap() error { return e.Err }

// PanicError is the failure recorded when a runner panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("command panicked: %v", e.Value) }

// CleanupError is reported when a cleanup step fails after the guarded
// command has already produced an outcome.
type CleanupError struct {
	Cleanup error
	Outcome error
}

func (e *CleanupError) Error() string {
	if e.Outcome == nil {
		return "cleanup failed: " + e.Cleanup.Error()
	}
	return fmt.Sprintf("cleanup failed: %v (after: %v)", e.Cleanup, e.Outcome)
}

// Unwrap exposes both the cleanup failure and the original outcome.
func (e *CleanupError) Unwrap() []error {
	if e.Outcome == nil {
		return []error{e.Cleanup}
	}
	return []error{e.Cleanup, e.Outcome}
}

// MonitorError is returned by ExecuteSync when a monitor faulted. Outcome
// holds the command's own outcome (nil on success) which is unaffected by
// the fault.
type MonitorError struct {
	Fault   error
	Outcome error
}

func (e *MonitorError) Error() string {
	if e.Outcome == nil {
		return "monitor fault: " + e.Fault.Error()
	}
	return fmt.Sprintf("monitor fault: %v (outcome: %v)", e.Fault, e.Outcome)
}

// Unwrap exposes both the fault and the outcome.
func (e *MonitorError) Unwrap() []error {
	if e.Outcome == nil {
		return []error{e.Fault}
	}
	return []error{e.Fault, e.Outcome}
}

// IsAborted reports whether err is an abort outcome. An abort never crosses
// a composite boundary: a *ChildError or *AggregateError that contains an
// abort is a failure of the composite.
func IsAborted(err error) bool {
	return walkOutcome(err, func(e error) bool {
		if e == ErrAborted {
			return true
		}
		_, ok := e.(*AbortError)
		return ok
	})
}

// StateOf maps an outcome error, as returned by ExecuteSync, to the terminal
// state it represents.
func StateOf(err error) State {
	err = OutcomeOf(err)
	switch {
	case err == nil:
		return StateSucceeded
	case IsAborted(err):
		return StateAborted
	default:
		return StateFailed
	}
}

// OutcomeOf strips a monitor fault from err, returning the command's own
// outcome.
func OutcomeOf(err error) error {
	if me, ok := err.(*MonitorError); ok {
		return me.Outcome
	}
	return err
}

// walkOutcome follows the single-error unwrap chain of err, stopping at
// composite boundaries.
func walkOutcome(err error, match func(error) bool) bool {
	for err != nil {
		switch e := err.(type) {
		case *ChildError, *AggregateError, *CleanupError:
			return false
		case *MonitorError:
			err = e.Outcome
			continue
		}
		if match(err) {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
