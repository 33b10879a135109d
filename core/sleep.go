package core

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done. Runners use it for abortable
// delays: when the execution is aborted the returned error is an abort
// outcome.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return Aborted(context.Cause(ctx))
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return Aborted(context.Cause(ctx))
	}
}
