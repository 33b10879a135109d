package command

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/cmdkit/core"
)

// ErrNoCommand is the failure of a Variable executed without an inner
// command.
var ErrNoCommand = errors.New("variable has no command")

// Variable delegates to a replaceable, owned inner command chosen before
// each run.
type Variable struct {
	core.Base

	mu    sync.Mutex
	inner core.Command
}

// NewVariable creates a Variable, optionally holding inner.
func NewVariable(name string, inner core.Command) (*Variable, error) {
	v := &Variable{}
	v.Base = core.NewBase(name, v)
	if inner != nil {
		if err := v.Set(inner); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Command returns the current inner command, or nil.
func (v *Variable) Command() core.Command {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inner
}

// Set replaces the inner command. The previous one is released, not
// disposed. Passing nil clears the Variable.
func (v *Variable) Set(cmd core.Command) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := mutable(v); err != nil {
		return err
	}
	if cmd == v.inner {
		return nil
	}
	if cmd != nil {
		if err := v.TakeOwnership(cmd); err != nil {
			return err
		}
	}
	if v.inner != nil {
		_ = v.RelinquishOwnership(v.inner)
	}
	v.inner = cmd
	return nil
}

// RunSync implements core.SyncRunner.
func (v *Variable) RunSync(ctx context.Context, arg any) (any, error) {
	inner := v.Command()
	if inner == nil {
		return nil, ErrNoCommand
	}
	return runChild(ctx, inner, arg)
}

// OnDispose forgets the inner command; core disposes it.
func (v *Variable) OnDispose() {
	v.mu.Lock()
	v.inner = nil
	v.mu.Unlock()
}
