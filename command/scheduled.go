package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/cmdkit/core"
)

// Scheduled runs an owned inner command once, at a given time. While the
// run is pending its time can be moved (never into the past) or the wait
// skipped.
type Scheduled struct {
	core.Base
	inner core.Command
	w     *waiter

	mu sync.Mutex
	at time.Time
}

// NewScheduled creates a Scheduled owning inner, running it at at.
func NewScheduled(name string, inner core.Command, at time.Time) (*Scheduled, error) {
	s := &Scheduled{inner: inner, at: at, w: newWaiter()}
	s.Base = core.NewBase(name, s)
	if err := s.TakeOwnership(inner); err != nil {
		return nil, err
	}
	return s, nil
}

// Time returns the scheduled time.
func (s *Scheduled) Time() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at
}

// SetTime moves the run to t. A time in the past is rejected.
func (s *Scheduled) SetTime(t time.Time) error {
	if t.Before(time.Now()) {
		return fmt.Errorf("%w: scheduled time %s is in the past", core.ErrInvalidArgument, t.Format(time.RFC3339Nano))
	}
	s.mu.Lock()
	s.at = t
	s.mu.Unlock()
	s.w.wake()
	return nil
}

// SkipWait runs the inner command immediately.
func (s *Scheduled) SkipWait() { s.w.skipWait() }

// RunSync implements core.SyncRunner.
func (s *Scheduled) RunSync(ctx context.Context, arg any) (any, error) {
	err := s.w.wait(ctx, func() (time.Time, bool) {
		return s.Time(), true
	})
	if err != nil {
		return nil, err
	}
	if s.AbortRequested() {
		return nil, core.ErrAborted
	}
	return runChild(ctx, s.inner, arg)
}

// OnReset drops a pending skip.
func (s *Scheduled) OnReset() { s.w.reset() }
