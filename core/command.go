package core

import (
	"context"
	"fmt"
	"time"
)

// State is the lifecycle state of a command.
type State int32

const (
	// StateIdle is the initial state and the state after Reset.
	StateIdle State = iota
	// StateRunning is held from the start of an execution until it reports.
	StateRunning
	// StateSucceeded is the terminal state of a successful execution.
	StateSucceeded
	// StateFailed is the terminal state of a failed execution.
	StateFailed
	// StateAborted is the terminal state of an aborted execution.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s is Succeeded, Failed or Aborted.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateAborted
}

// Command is a unit of abortable, observably terminating work.
//
// Commands are created by embedding Base (see NewBase) in a type that
// implements SyncRunner. The interface is sealed: only types embedding Base
// satisfy it, which lets composites rely on the ownership registry kept by
// Base.
//
// Every execution reports exactly one terminal outcome. A command can be
// executed again once it reached a terminal state; the new execution starts
// from a clean slate (implicit Reset).
type Command interface {
	// Name returns the diagnostic name given to NewBase.
	Name() string

	// ExecuteSync runs the command on the calling goroutine until it reaches
	// a terminal state. The returned error is nil on success, satisfies
	// IsAborted when the command was aborted, and is the failure otherwise.
	// Cancelling ctx aborts the command.
	ExecuteSync(ctx context.Context, arg any) (any, error)

	// ExecuteAsync starts the command and returns. The listener receives
	// exactly one callback from whichever goroutine reaches the terminal
	// state. A non-nil error other than *MonitorError means the command did
	// not start and the listener will not be called.
	ExecuteAsync(ctx context.Context, listener Listener, arg any) error

	// Abort requests cooperative cancellation. It never blocks. Aborting an
	// idle command is remembered for its next execution; aborting a
	// terminal one is a no-op.
	Abort()

	// AbortAndWait aborts and blocks until the current execution finished.
	AbortAndWait()

	// Wait blocks until the current execution (if any) finished.
	Wait()

	// WaitTimeout is Wait bounded by d; it reports false on timeout.
	WaitTimeout(d time.Duration) bool

	// Done returns a channel closed when the current execution finished.
	Done() <-chan struct{}

	State() State
	Result() any
	Err() error

	// Owner returns the composite owning this command, or nil when the
	// command is top-level.
	Owner() Command

	// Children returns a snapshot of the commands owned by this one.
	Children() []Command

	// Reset returns a finished command to Idle, clearing its result, error
	// and abort request.
	Reset() error

	// Dispose aborts a running execution, releases the command and every
	// command it still owns. It is idempotent.
	Dispose()

	Disposed() bool

	treeNode() *node
}

// SyncRunner performs a command's work. It is the one method every command
// implements. ctx is cancelled with cause ErrAborted when the command is
// aborted; returning ErrAborted, or ctx's error after an abort, reports an
// abort outcome.
type SyncRunner interface {
	RunSync(ctx context.Context, arg any) (any, error)
}

// AsyncRunner is implemented by commands with a native asynchronous path.
// RunAsync must not block and must report through c exactly once. Commands
// without it run RunSync on a new goroutine when executed asynchronously.
type AsyncRunner interface {
	RunAsync(ctx context.Context, c *Completion, arg any)
}

// AbortHandler is notified when an abort is requested for a running
// execution.
type AbortHandler interface {
	OnAbortRequested()
}

// Resetter is notified after an explicit Reset.
type Resetter interface {
	OnReset()
}

// Disposer releases command specific resources on Dispose.
type Disposer interface {
	OnDispose()
}
