package command

import (
	"context"
	"fmt"

	"github.com/hupe1980/cmdkit/core"
)

// AbortEvented aborts its inner command when an external channel fires.
// The inner command is raced against a trigger outside the ownership tree,
// so it must stay top-level: AbortEvented never owns it.
type AbortEvented struct {
	core.Base
	inner   core.Command
	trigger <-chan struct{}
}

// NewAbortEvented creates an AbortEvented. Closing (or sending on) trigger
// while the inner command runs aborts it.
func NewAbortEvented(name string, inner core.Command, trigger <-chan struct{}) (*AbortEvented, error) {
	if trigger == nil {
		return nil, fmt.Errorf("%w: nil trigger", core.ErrInvalidArgument)
	}
	if err := core.RequireTopLevel(inner); err != nil {
		return nil, err
	}
	a := &AbortEvented{inner: inner, trigger: trigger}
	a.Base = core.NewBase(name, a)
	return a, nil
}

// Inner returns the guarded command.
func (a *AbortEvented) Inner() core.Command { return a.inner }

// RunSync implements core.SyncRunner.
func (a *AbortEvented) RunSync(ctx context.Context, arg any) (any, error) {
	return raceAbort(ctx, a.inner, arg, a.trigger)
}

// AbortSignaled aborts its inner command when the current execution of a
// linked command is aborted. Like AbortEvented it requires a top-level
// inner command.
type AbortSignaled struct {
	core.Base
	inner  core.Command
	linked core.Command
}

type abortSignaler interface {
	AbortSignal() <-chan struct{}
	AbortRequested() bool
}

// NewAbortSignaled creates an AbortSignaled linking inner to linked.
func NewAbortSignaled(name string, inner, linked core.Command) (*AbortSignaled, error) {
	if linked == nil {
		return nil, fmt.Errorf("%w: nil linked command", core.ErrInvalidArgument)
	}
	if _, ok := linked.(abortSignaler); !ok {
		return nil, fmt.Errorf("%w: %T exposes no abort signal", core.ErrInvalidArgument, linked)
	}
	if err := core.RequireTopLevel(inner); err != nil {
		return nil, err
	}
	a := &AbortSignaled{inner: inner, linked: linked}
	a.Base = core.NewBase(name, a)
	return a, nil
}

// Inner returns the guarded command.
func (a *AbortSignaled) Inner() core.Command { return a.inner }

// RunSync implements core.SyncRunner.
func (a *AbortSignaled) RunSync(ctx context.Context, arg any) (any, error) {
	linked := a.linked.(abortSignaler)
	signal := linked.AbortSignal()
	if a.linked.State() == core.StateRunning && linked.AbortRequested() {
		a.inner.Abort()
	}
	return raceAbort(ctx, a.inner, arg, signal)
}

// raceAbort runs inner and aborts it when trigger fires or ctx is done.
func raceAbort(ctx context.Context, inner core.Command, arg any, trigger <-chan struct{}) (any, error) {
	if err := core.RequireTopLevel(inner); err != nil {
		return nil, err
	}
	f, err := core.Go(ctx, inner, arg)
	if f == nil {
		return nil, err
	}
	if err != nil {
		core.LoggerFrom(ctx).Warn("monitor fault", "command", inner.Name(), "error", err)
	}
	select {
	case <-f.Done():
	case <-trigger:
		inner.Abort()
	case <-ctx.Done():
		inner.Abort()
	}
	return f.Await(context.Background())
}
