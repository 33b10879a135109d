package core

import (
	"context"
	"errors"
	"fmt"
)

// Future is the blocking view of one asynchronous execution.
type Future struct {
	cmd    Command
	done   chan struct{}
	result any
	err    error
}

// Go starts cmd asynchronously and returns a Future for its outcome. The
// future cannot cancel anything itself; abort cmd to stop it. A
// *MonitorError is returned together with a usable future when a start hook
// faulted.
func Go(ctx context.Context, cmd Command, arg any) (*Future, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", ErrInvalidArgument)
	}
	f := &Future{cmd: cmd, done: make(chan struct{})}
	err := cmd.ExecuteAsync(ctx, ListenerFuncs{
		OnSucceeded: func(result any) { f.settle(result, nil) },
		OnAborted:   func() { f.settle(nil, abortOutcome(cmd)) },
		OnFailed:    func(err error) { f.settle(nil, err) },
	}, arg)
	var me *MonitorError
	if err != nil && !errors.As(err, &me) {
		return nil, err
	}
	return f, err
}

func (f *Future) settle(result any, err error) {
	f.result, f.err = result, err
	close(f.done)
}

// Command returns the command behind the future.
func (f *Future) Command() Command { return f.cmd }

// Done returns a channel closed once the outcome is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the execution finished or ctx is done. Giving up on
// ctx does not abort the command.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// abortOutcome returns the stored abort error of cmd, keeping a diagnostic
// cause when there is one.
func abortOutcome(cmd Command) error {
	if err := cmd.Err(); IsAborted(err) {
		return err
	}
	return ErrAborted
}
