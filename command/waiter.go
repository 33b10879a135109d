package command

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/cmdkit/core"
)

// waiter is an abortable wait for a deadline that may move, be skipped or
// be cancelled while a runner is blocked in it.
type waiter struct {
	mu   sync.Mutex
	skip bool
	kick chan struct{}
}

func newWaiter() *waiter {
	return &waiter{kick: make(chan struct{}, 1)}
}

// wait blocks until the deadline returned by next has passed, the wait is
// skipped, or ctx is done. next is re-evaluated after every wake-up; a zero
// time or ok == false ends the wait immediately.
func (w *waiter) wait(ctx context.Context, next func() (time.Time, bool)) error {
	for {
		w.mu.Lock()
		if w.skip {
			w.skip = false
			w.mu.Unlock()
			return nil
		}
		w.mu.Unlock()

		deadline, ok := next()
		if !ok {
			return nil
		}
		d := time.Until(deadline)
		if d <= 0 {
			if ctx.Err() != nil {
				return core.Aborted(context.Cause(ctx))
			}
			return nil
		}

		t := time.NewTimer(d)
		select {
		case <-t.C:
			return nil
		case <-w.kick:
			t.Stop()
		case <-ctx.Done():
			t.Stop()
			return core.Aborted(context.Cause(ctx))
		}
	}
}

// skipWait ends the current (or next) wait early.
func (w *waiter) skipWait() {
	w.mu.Lock()
	w.skip = true
	w.mu.Unlock()
	w.wake()
}

// wake makes a blocked wait re-evaluate its deadline.
func (w *waiter) wake() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *waiter) reset() {
	w.mu.Lock()
	w.skip = false
	w.mu.Unlock()
	select {
	case <-w.kick:
	default:
	}
}
