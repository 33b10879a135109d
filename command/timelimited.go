package command

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/cmdkit/core"
)

// TimeLimited races an owned inner command against a timer. When the limit
// passes first the inner command is aborted and, once it settled, the
// execution fails with a *core.TimeoutError.
type TimeLimited struct {
	core.Base
	inner core.Command
	limit time.Duration
}

// NewTimeLimited creates a TimeLimited owning inner.
func NewTimeLimited(name string, inner core.Command, limit time.Duration) (*TimeLimited, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: time limit must be positive, got %s", core.ErrInvalidArgument, limit)
	}
	t := &TimeLimited{inner: inner, limit: limit}
	t.Base = core.NewBase(name, t)
	if err := t.TakeOwnership(inner); err != nil {
		return nil, err
	}
	return t, nil
}

// Limit returns the configured time limit.
func (t *TimeLimited) Limit() time.Duration { return t.limit }

// RunSync implements core.SyncRunner.
func (t *TimeLimited) RunSync(ctx context.Context, arg any) (any, error) {
	f, err := core.Go(ctx, t.inner, arg)
	if f == nil {
		return nil, err
	}
	if err != nil {
		core.LoggerFrom(ctx).Warn("monitor fault", "command", t.inner.Name(), "error", err)
	}

	timer := time.NewTimer(t.limit)
	defer timer.Stop()

	select {
	case <-f.Done():
		return f.Await(context.Background())
	case <-timer.C:
	}

	_ = t.AbortChild(t.inner)
	res, err := f.Await(context.Background())
	if core.IsAborted(err) && !t.AbortRequested() {
		return nil, &core.TimeoutError{Command: t.inner.Name(), Limit: t.limit}
	}
	return res, err
}
