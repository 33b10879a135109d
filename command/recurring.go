package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/cmdkit/core"
)

// Schedule computes the next run time. last is the start time of the
// previous run (zero before the first run). Returning ok == false ends the
// recurrence.
type Schedule func(last, now time.Time) (next time.Time, ok bool)

// Every returns a Schedule running immediately and then every d.
func Every(d time.Duration) Schedule {
	return func(last, now time.Time) (time.Time, bool) {
		if last.IsZero() {
			return now, true
		}
		return last.Add(d), true
	}
}

// Times limits s to n runs.
func Times(n int, s Schedule) Schedule {
	var (
		mu   sync.Mutex
		runs int
	)
	return func(last, now time.Time) (time.Time, bool) {
		mu.Lock()
		defer mu.Unlock()
		if last.IsZero() {
			runs = 0
		}
		if runs >= n {
			return time.Time{}, false
		}
		runs++
		return s(last, now)
	}
}

// Recurring runs an owned inner command at the times produced by a
// Schedule until the schedule ends, the inner command fails, or the
// recurrence is aborted. The result of the last run is reported.
type Recurring struct {
	core.Base
	inner    core.Command
	schedule Schedule
	w        *waiter

	mu       sync.Mutex
	next     time.Time
	override bool
	runs     int
}

// NewRecurring creates a Recurring owning inner.
func NewRecurring(name string, inner core.Command, schedule Schedule) (*Recurring, error) {
	if schedule == nil {
		return nil, fmt.Errorf("%w: nil schedule", core.ErrInvalidArgument)
	}
	r := &Recurring{inner: inner, schedule: schedule, w: newWaiter()}
	r.Base = core.NewBase(name, r)
	if err := r.TakeOwnership(inner); err != nil {
		return nil, err
	}
	return r, nil
}

// NextRun returns the time the pending run is scheduled for, or the zero
// time when nothing is pending.
func (r *Recurring) NextRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// Runs returns the number of runs started in the current execution.
func (r *Recurring) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// SetNextRun overrides the time of the pending (or next computed) run.
func (r *Recurring) SetNextRun(t time.Time) {
	r.mu.Lock()
	r.next, r.override = t, true
	r.mu.Unlock()
	r.w.wake()
}

// SkipWait starts the pending run immediately.
func (r *Recurring) SkipWait() { r.w.skipWait() }

// RunSync implements core.SyncRunner.
func (r *Recurring) RunSync(ctx context.Context, arg any) (any, error) {
	var (
		last   any
		lastAt time.Time
	)
	r.mu.Lock()
	r.runs = 0
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.next, r.override = time.Time{}, false
		r.mu.Unlock()
	}()

	for {
		if !r.plan(lastAt) {
			return last, nil
		}
		err := r.w.wait(ctx, func() (time.Time, bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.next, true
		})
		if err != nil {
			return nil, err
		}
		if r.AbortRequested() {
			return nil, core.ErrAborted
		}

		r.mu.Lock()
		r.runs++
		r.next, r.override = time.Time{}, false
		r.mu.Unlock()

		lastAt = time.Now()
		res, err := runChild(ctx, r.inner, arg)
		if err != nil {
			return nil, err
		}
		last = res
	}
}

// plan fills in the next run time unless it was overridden.
func (r *Recurring) plan(lastAt time.Time) bool {
	r.mu.Lock()
	if r.override {
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()

	next, ok := r.schedule(lastAt, time.Now())
	if !ok {
		return false
	}
	r.mu.Lock()
	if !r.override {
		r.next = next
	}
	r.mu.Unlock()
	return true
}

// OnReset clears the run counter and pending overrides.
func (r *Recurring) OnReset() {
	r.mu.Lock()
	r.runs, r.next, r.override = 0, time.Time{}, false
	r.mu.Unlock()
	r.w.reset()
}
