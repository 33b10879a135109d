package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hupe1980/cmdkit/core"
)

// RetryPolicy decides whether a failed attempt is retried. attempt counts
// from 1. A non-nil error is a malfunction of the policy itself and fails the
// Retryable with a *core.PolicyError.
type RetryPolicy func(attempt int, err error) (retry bool, delay time.Duration, perr error)

// FixedRetry retries up to maxAttempts attempts in total, waiting delay
// between them.
func FixedRetry(maxAttempts int, delay time.Duration) RetryPolicy {
	return func(attempt int, _ error) (bool, time.Duration, error) {
		return attempt < maxAttempts, delay, nil
	}
}

// ExponentialRetry retries up to maxAttempts attempts in total with
// exponentially growing, jittered delays between initial and maxInterval.
func ExponentialRetry(maxAttempts int, initial, maxInterval time.Duration) RetryPolicy {
	var mu sync.Mutex
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval

	return func(attempt int, _ error) (bool, time.Duration, error) {
		if attempt >= maxAttempts {
			return false, 0, nil
		}
		mu.Lock()
		defer mu.Unlock()
		if attempt == 1 {
			b.Reset()
		}
		d := b.NextBackOff()
		if d == backoff.Stop {
			return false, 0, nil
		}
		return true, d, nil
	}
}

// Retryable re-runs an owned inner command with the same argument while
// its RetryPolicy asks for it. Aborts are never retried.
type Retryable struct {
	core.Base
	inner  core.Command
	policy RetryPolicy

	mu       sync.Mutex
	attempts int
}

// NewRetryable creates a Retryable owning inner.
func NewRetryable(name string, inner core.Command, policy RetryPolicy) (*Retryable, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: nil retry policy", core.ErrInvalidArgument)
	}
	r := &Retryable{inner: inner, policy: policy}
	r.Base = core.NewBase(name, r)
	if err := r.TakeOwnership(inner); err != nil {
		return nil, err
	}
	return r, nil
}

// Attempts returns the number of attempts made by the current or last
// execution.
func (r *Retryable) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// RunSync implements core.SyncRunner.
func (r *Retryable) RunSync(ctx context.Context, arg any) (any, error) {
	for attempt := 1; ; attempt++ {
		r.mu.Lock()
		r.attempts = attempt
		r.mu.Unlock()

		res, err := runChild(ctx, r.inner, arg)
		if err == nil || core.IsAborted(err) {
			return res, err
		}

		retry, delay, perr := r.consult(attempt, err)
		if perr != nil {
			return nil, &core.PolicyError{Err: perr}
		}
		if !retry {
			return nil, err
		}
		core.LoggerFrom(ctx).Debug("retrying command", "command", r.inner.Name(), "attempt", attempt, "delay", delay, "error", err)
		if err := core.Sleep(ctx, delay); err != nil {
			return nil, err
		}
		if r.AbortRequested() {
			return nil, core.ErrAborted
		}
	}
}

func (r *Retryable) consult(attempt int, err error) (retry bool, delay time.Duration, perr error) {
	defer func() {
		if p := recover(); p != nil {
			retry, delay, perr = false, 0, fmt.Errorf("retry policy panicked: %v", p)
		}
	}()
	return r.policy(attempt, err)
}

// OnReset clears the attempt counter.
func (r *Retryable) OnReset() {
	r.mu.Lock()
	r.attempts = 0
	r.mu.Unlock()
}
