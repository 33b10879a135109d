package command

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cmdkit/core"
	"github.com/hupe1980/cmdkit/internal/testutil"
)

func TestDelegate(t *testing.T) {
	d, err := NewDelegate("d", func(ctx context.Context, arg any) (any, error) {
		return arg.(string) + "!", nil
	})
	require.NoError(t, err)

	res, err := d.ExecuteSync(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", res)

	_, err = NewDelegate("nil", nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestDelegate_ContextMapsToAbort(t *testing.T) {
	started := make(chan struct{})
	d, err := NewDelegate("d", func(ctx context.Context, arg any) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	l := testutil.NewListener()
	require.NoError(t, d.ExecuteAsync(context.Background(), l, nil))
	<-started
	d.AbortAndWait()
	assert.Equal(t, core.StateAborted, d.State())
}

func TestPause(t *testing.T) {
	p, err := NewPause("p", 5*time.Millisecond)
	require.NoError(t, err)

	res, err := p.ExecuteSync(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "x", res)

	_, err = NewPause("neg", -time.Second)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestTimeLimited(t *testing.T) {
	t.Run("inner finishes in time", func(t *testing.T) {
		inner := testutil.NewStepBuilder("inner").Result(1).Build()
		tl, err := NewTimeLimited("tl", inner, time.Second)
		require.NoError(t, err)

		res, err := tl.ExecuteSync(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, res)
	})

	t.Run("timeout", func(t *testing.T) {
		inner := testutil.NewStepBuilder("inner").Block().Build()
		tl, err := NewTimeLimited("tl", inner, 10*time.Millisecond)
		require.NoError(t, err)

		_, err = tl.ExecuteSync(context.Background(), nil)
		var te *core.TimeoutError
		require.ErrorAs(t, err, &te)
		assert.ErrorIs(t, err, core.ErrTimeout)
		assert.Equal(t, 10*time.Millisecond, te.Limit)
		assert.Equal(t, core.StateFailed, tl.State())
		assert.Equal(t, core.StateAborted, inner.State())
	})

	t.Run("inner failure passes through", func(t *testing.T) {
		boom := errors.New("boom")
		inner := testutil.NewStepBuilder("inner").Fail(boom).Build()
		tl, err := NewTimeLimited("tl", inner, time.Second)
		require.NoError(t, err)

		_, err = tl.ExecuteSync(context.Background(), nil)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, core.ErrTimeout)
	})

	t.Run("own abort", func(t *testing.T) {
		inner := testutil.NewStepBuilder("inner").Block().Build()
		tl, err := NewTimeLimited("tl", inner, time.Hour)
		require.NoError(t, err)

		require.NoError(t, tl.ExecuteAsync(context.Background(), testutil.NewListener(), nil))
		require.True(t, inner.WaitStarted(waitLimit))
		tl.AbortAndWait()
		assert.Equal(t, core.StateAborted, tl.State())
	})
}

func TestRetryable(t *testing.T) {
	t.Run("succeeds after retries", func(t *testing.T) {
		var calls atomic.Int32
		inner := testutil.NewStepBuilder("inner").Func(func(ctx context.Context, arg any) (any, error) {
			if calls.Add(1) < 3 {
				return nil, errors.New("flaky")
			}
			return arg, nil
		}).Build()
		r, err := NewRetryable("r", inner, FixedRetry(5, time.Millisecond))
		require.NoError(t, err)

		res, err := r.ExecuteSync(context.Background(), "v")
		require.NoError(t, err)
		assert.Equal(t, "v", res)
		assert.Equal(t, 3, r.Attempts())
	})

	t.Run("surfaces last failure", func(t *testing.T) {
		boom := errors.New("boom")
		inner := testutil.NewStepBuilder("inner").Fail(boom).Build()
		r, err := NewRetryable("r", inner, FixedRetry(3, 0))
		require.NoError(t, err)

		_, err = r.ExecuteSync(context.Background(), nil)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, inner.Calls())
	})

	t.Run("policy malfunction", func(t *testing.T) {
		inner := testutil.NewStepBuilder("inner").Fail(errors.New("boom")).Build()
		policyErr := errors.New("policy broke")
		r, err := NewRetryable("r", inner, func(int, error) (bool, time.Duration, error) {
			return false, 0, policyErr
		})
		require.NoError(t, err)

		_, err = r.ExecuteSync(context.Background(), nil)
		var pe *core.PolicyError
		require.ErrorAs(t, err, &pe)
		assert.ErrorIs(t, err, policyErr)
	})

	t.Run("policy panic", func(t *testing.T) {
		inner := testutil.NewStepBuilder("inner").Fail(errors.New("boom")).Build()
		r, err := NewRetryable("r", inner, func(int, error) (bool, time.Duration, error) {
			panic("bad policy")
		})
		require.NoError(t, err)

		_, err = r.ExecuteSync(context.Background(), nil)
		var pe *core.PolicyError
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("abort during delay", func(t *testing.T) {
		inner := testutil.NewStepBuilder("inner").Fail(errors.New("boom")).Build()
		r, err := NewRetryable("r", inner, FixedRetry(10, time.Hour))
		require.NoError(t, err)

		require.NoError(t, r.ExecuteAsync(context.Background(), testutil.NewListener(), nil))
		require.True(t, inner.WaitStarted(waitLimit))
		r.AbortAndWait()
		assert.Equal(t, core.StateAborted, r.State())
		assert.Equal(t, 1, inner.Calls())
	})

	t.Run("aborts are not retried", func(t *testing.T) {
		inner := testutil.NewStepBuilder("inner").Func(func(context.Context, any) (any, error) {
			return nil, core.ErrAborted
		}).Build()
		r, err := NewRetryable("r", inner, FixedRetry(10, 0))
		require.NoError(t, err)

		_, err = r.ExecuteSync(context.Background(), nil)
		assert.True(t, core.IsAborted(err))
		assert.Equal(t, 1, inner.Calls())
	})
}

func TestExponentialRetry(t *testing.T) {
	policy := ExponentialRetry(3, 10*time.Millisecond, 50*time.Millisecond)

	retry, d, err := policy(1, errors.New("x"))
	require.NoError(t, err)
	assert.True(t, retry)
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 50*time.Millisecond)

	retry, _, _ = policy(2, errors.New("x"))
	assert.True(t, retry)
	retry, _, _ = policy(3, errors.New("x"))
	assert.False(t, retry)
}

func TestFinally(t *testing.T) {
	t.Run("cleanup runs after success", func(t *testing.T) {
		inner := testutil.NewStepBuilder("inner").Result("r").Build()
		cleanup := testutil.NewStep("cleanup")
		f, err := NewFinally("f", inner, cleanup)
		require.NoError(t, err)

		res, err := f.ExecuteSync(context.Background(), "arg")
		require.NoError(t, err)
		assert.Equal(t, "r", res)
		assert.Equal(t, []any{"arg"}, cleanup.Args())
	})

	t.Run("cleanup runs after abort", func(t *testing.T) {
		inner := testutil.NewStepBuilder("inner").Block().Build()
		cleanup := testutil.NewStep("cleanup")
		f, err := NewFinally("f", inner, cleanup)
		require.NoError(t, err)

		require.NoError(t, f.ExecuteAsync(context.Background(), testutil.NewListener(), nil))
		require.True(t, inner.WaitStarted(waitLimit))
		f.AbortAndWait()
		assert.Equal(t, core.StateAborted, f.State())
		assert.Equal(t, core.StateSucceeded, cleanup.State())
	})

	t.Run("cleanup failure wraps outcome", func(t *testing.T) {
		innerErr, cleanupErr := errors.New("inner"), errors.New("cleanup")
		inner := testutil.NewStepBuilder("inner").Fail(innerErr).Build()
		cleanup := testutil.NewStepBuilder("cleanup").Fail(cleanupErr).Build()
		f, err := NewFinally("f", inner, cleanup)
		require.NoError(t, err)

		_, err = f.ExecuteSync(context.Background(), nil)
		var ce *core.CleanupError
		require.ErrorAs(t, err, &ce)
		assert.ErrorIs(t, err, innerErr)
		assert.ErrorIs(t, err, cleanupErr)
		assert.Equal(t, core.StateFailed, f.State())
	})
}

func TestVariable(t *testing.T) {
	v, err := NewVariable("v", nil)
	require.NoError(t, err)

	_, err = v.ExecuteSync(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoCommand)

	a := testutil.NewStepBuilder("a").Result("a").Build()
	b := testutil.NewStepBuilder("b").Result("b").Build()
	require.NoError(t, v.Set(a))
	res, err := v.ExecuteSync(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "a", res)

	require.NoError(t, v.Set(b))
	assert.Nil(t, a.Owner())
	assert.Same(t, v, b.Owner())
	res, err = v.ExecuteSync(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "b", res)
}

func TestAbortEvented(t *testing.T) {
	inner := testutil.NewStepBuilder("inner").Block().Build()
	trigger := make(chan struct{})
	a, err := NewAbortEvented("ae", inner, trigger)
	require.NoError(t, err)
	assert.Nil(t, inner.Owner(), "the inner command stays top-level")

	l := testutil.NewListener()
	require.NoError(t, a.ExecuteAsync(context.Background(), l, nil))
	require.True(t, inner.WaitStarted(waitLimit))
	close(trigger)

	require.True(t, l.Wait(waitLimit))
	assert.Equal(t, core.StateAborted, l.Outcomes()[0].State)
	assert.Equal(t, core.StateAborted, inner.State())
}

func TestAbortEvented_RequiresTopLevel(t *testing.T) {
	inner := testutil.NewStep("inner")
	_, err := NewSequential("owner", inner)
	require.NoError(t, err)

	_, err = NewAbortEvented("ae", inner, make(chan struct{}))
	assert.ErrorIs(t, err, core.ErrTopLevelRequired)
}

func TestAbortSignaled(t *testing.T) {
	linked := testutil.NewStepBuilder("linked").Block().Build()
	inner := testutil.NewStepBuilder("inner").Block().Build()
	a, err := NewAbortSignaled("as", inner, linked)
	require.NoError(t, err)

	require.NoError(t, linked.ExecuteAsync(context.Background(), testutil.NewListener(), nil))
	require.True(t, linked.WaitStarted(waitLimit))

	l := testutil.NewListener()
	require.NoError(t, a.ExecuteAsync(context.Background(), l, nil))
	require.True(t, inner.WaitStarted(waitLimit))

	linked.Abort()
	require.True(t, l.Wait(waitLimit))
	assert.Equal(t, core.StateAborted, inner.State())
	assert.Equal(t, core.StateAborted, l.Outcomes()[0].State)
}
