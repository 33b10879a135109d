package command

import (
	"context"

	"github.com/hupe1980/cmdkit/core"
)

// Finally runs an owned cleanup command after the owned inner command
// reached any terminal state. The cleanup receives the original argument and
// runs with a context that is not cancelled by the inner command's abort.
//
// Outcome:
//   - cleanup succeeds: the inner outcome is reported unchanged
//   - cleanup aborts: the execution is aborted
//   - cleanup fails: the execution fails with a *core.CleanupError carrying
//     both the cleanup failure and the inner outcome
type Finally struct {
	core.Base
	inner   core.Command
	cleanup core.Command
}

// NewFinally creates a Finally owning inner and cleanup.
func NewFinally(name string, inner, cleanup core.Command) (*Finally, error) {
	f := &Finally{inner: inner, cleanup: cleanup}
	f.Base = core.NewBase(name, f)
	if err := f.TakeOwnership(inner); err != nil {
		return nil, err
	}
	if err := f.TakeOwnership(cleanup); err != nil {
		_ = f.RelinquishOwnership(inner)
		return nil, err
	}
	return f, nil
}

// RunSync implements core.SyncRunner.
func (f *Finally) RunSync(ctx context.Context, arg any) (any, error) {
	res, err := runChild(ctx, f.inner, arg)

	_, cerr := runChild(context.WithoutCancel(ctx), f.cleanup, arg)
	switch {
	case cerr == nil:
		return res, err
	case core.IsAborted(cerr):
		return nil, cerr
	default:
		return nil, &core.CleanupError{Cleanup: &core.ChildError{Child: f.cleanup.Name(), Err: cerr}, Outcome: err}
	}
}
