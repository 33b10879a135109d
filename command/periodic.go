package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/cmdkit/core"
)

// PauseMode decides where a Periodic places its interval.
type PauseMode int

const (
	// PauseAfter waits the interval after every run except the last one.
	PauseAfter PauseMode = iota
	// PauseBefore waits the interval before every run, including the first.
	PauseBefore
)

// Periodic repeats an owned inner command.
//
// Key features:
//   - fixed (WithCount) or unbounded repetition
//   - pause before or after each run (WithPauseMode)
//   - live SetInterval, SkipWait and Stop while running
//   - StopOnFailure ends the loop on the first inner failure; otherwise
//     failures are logged and the loop continues
//
// Each run receives the Periodic's argument. On completion the result of the
// last successful run is reported. Stop ends the loop successfully after the
// current run or wait.
type Periodic struct {
	core.Base
	inner core.Command
	w     *waiter

	mu            sync.Mutex
	count         int
	interval      time.Duration
	mode          PauseMode
	stopOnFailure bool
	iterations    int
	stopped       bool
	waitStart     time.Time
}

// PeriodicOption configures a Periodic.
type PeriodicOption func(*Periodic)

// WithCount bounds the number of runs; 0 repeats until stopped or aborted.
func WithCount(n int) PeriodicOption {
	return func(p *Periodic) { p.count = n }
}

// WithPauseMode sets where the interval is waited.
func WithPauseMode(m PauseMode) PeriodicOption {
	return func(p *Periodic) { p.mode = m }
}

// WithStopOnFailure makes the first inner failure end the loop as a failure.
func WithStopOnFailure(stop bool) PeriodicOption {
	return func(p *Periodic) { p.stopOnFailure = stop }
}

// NewPeriodic creates a Periodic owning inner.
func NewPeriodic(name string, inner core.Command, interval time.Duration, opts ...PeriodicOption) (*Periodic, error) {
	if interval < 0 {
		return nil, fmt.Errorf("%w: negative interval %s", core.ErrInvalidArgument, interval)
	}
	p := &Periodic{inner: inner, interval: interval, w: newWaiter()}
	for _, o := range opts {
		o(p)
	}
	if p.count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", core.ErrInvalidArgument, p.count)
	}
	if p.mode != PauseAfter && p.mode != PauseBefore {
		return nil, fmt.Errorf("%w: unknown pause mode %d", core.ErrInvalidArgument, p.mode)
	}
	p.Base = core.NewBase(name, p)
	if err := p.TakeOwnership(inner); err != nil {
		return nil, err
	}
	return p, nil
}

// Inner returns the repeated command.
func (p *Periodic) Inner() core.Command { return p.inner }

// Iterations returns the number of runs started in the current execution.
func (p *Periodic) Iterations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.iterations
}

// Interval returns the current interval.
func (p *Periodic) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the interval. A wait in progress is re-timed from its
// original start.
func (p *Periodic) SetInterval(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative interval %s", core.ErrInvalidArgument, d)
	}
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
	p.w.wake()
	return nil
}

// SkipWait ends the current wait so that the next run starts immediately.
func (p *Periodic) SkipWait() { p.w.skipWait() }

// Stop ends the loop after the current run or wait. The execution succeeds.
// A stop requested while idle ends the next execution before its first run.
func (p *Periodic) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.w.wake()
}

// RunSync implements core.SyncRunner.
func (p *Periodic) RunSync(ctx context.Context, arg any) (any, error) {
	p.mu.Lock()
	p.iterations = 0
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.stopped = false
		p.mu.Unlock()
	}()

	var last any
	for {
		if p.done() {
			return last, nil
		}
		if p.mode == PauseBefore {
			if err := p.pause(ctx); err != nil {
				return nil, err
			}
			if p.done() {
				return last, nil
			}
		}
		if p.AbortRequested() {
			return nil, core.ErrAborted
		}

		p.mu.Lock()
		p.iterations++
		p.mu.Unlock()

		res, err := runChild(ctx, p.inner, arg)
		switch {
		case err == nil:
			last = res
		case core.IsAborted(err):
			return nil, err
		case p.stopOnFailure:
			return nil, err
		default:
			core.LoggerFrom(ctx).Warn("periodic run failed", "command", p.Name(), "iteration", p.Iterations(), "error", err)
		}

		if p.mode == PauseAfter && !p.done() {
			if err := p.pause(ctx); err != nil {
				return nil, err
			}
		}
	}
}

// done reports whether the loop should end.
func (p *Periodic) done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped || (p.count > 0 && p.iterations >= p.count)
}

func (p *Periodic) pause(ctx context.Context) error {
	p.mu.Lock()
	p.waitStart = time.Now()
	p.mu.Unlock()
	return p.w.wait(ctx, func() (time.Time, bool) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.stopped {
			return time.Time{}, false
		}
		return p.waitStart.Add(p.interval), true
	})
}

// OnReset clears the counters and pending skips.
func (p *Periodic) OnReset() {
	p.mu.Lock()
	p.iterations, p.stopped = 0, false
	p.mu.Unlock()
	p.w.reset()
}
