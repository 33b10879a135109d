package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cmdkit/core"
	"github.com/hupe1980/cmdkit/internal/testutil"
)

const waitLimit = 2 * time.Second

func TestNewSequential(t *testing.T) {
	a, b := testutil.NewStep("a"), testutil.NewStep("b")

	s, err := NewSequential("seq", a, b)
	require.NoError(t, err)
	assert.Equal(t, "seq", s.Name())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []core.Command{a, b}, s.Commands())
	assert.Same(t, s, a.Owner())
}

func TestSequential_FeedsResults(t *testing.T) {
	double := func(ctx context.Context, arg any) (any, error) { return arg.(int) * 2, nil }
	a := testutil.NewStepBuilder("a").Func(double).Build()
	b := testutil.NewStepBuilder("b").Func(double).Build()
	c := testutil.NewStepBuilder("c").Func(double).Build()

	s, err := NewSequential("seq", a, b, c)
	require.NoError(t, err)

	res, err := s.ExecuteSync(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 8, res)
	assert.Equal(t, []any{2}, b.Args())
	assert.Equal(t, []any{4}, c.Args())
}

func TestSequential_StopsAtFailure(t *testing.T) {
	boom := errors.New("boom")
	a := testutil.NewStepBuilder("a").Result("from-a").Build()
	b := testutil.NewStepBuilder("b").Fail(boom).Build()
	c := testutil.NewStep("c")

	s, err := NewSequential("seq", a, b, c)
	require.NoError(t, err)

	_, err = s.ExecuteSync(context.Background(), "in")
	require.ErrorIs(t, err, boom)

	var ce *core.ChildError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "b", ce.Child)
	assert.Equal(t, core.StateFailed, s.State())
	assert.Equal(t, []any{"from-a"}, b.Args())
	assert.Zero(t, c.Calls(), "c must never start")
	assert.Equal(t, core.StateIdle, c.State())
}

func TestSequential_Empty(t *testing.T) {
	s, err := NewSequential("seq")
	require.NoError(t, err)

	res, err := s.ExecuteSync(context.Background(), "echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", res)
}

func TestSequential_Abort(t *testing.T) {
	a := testutil.NewStep("a")
	b := testutil.NewStepBuilder("b").Block().Build()
	c := testutil.NewStep("c")
	s, err := NewSequential("seq", a, b, c)
	require.NoError(t, err)

	l := testutil.NewListener()
	require.NoError(t, s.ExecuteAsync(context.Background(), l, nil))
	require.True(t, b.WaitStarted(waitLimit))

	s.AbortAndWait()
	assert.Equal(t, core.StateAborted, s.State())
	assert.Equal(t, core.StateAborted, b.State())
	assert.Zero(t, c.Calls())
	require.True(t, l.Wait(waitLimit))
	assert.Equal(t, core.StateAborted, l.Outcomes()[0].State)
}

func TestSequential_ChildAbortAbortsSequence(t *testing.T) {
	a := testutil.NewStepBuilder("a").Block().Build()
	s, err := NewSequential("seq", a)
	require.NoError(t, err)

	go func() {
		a.WaitStarted(waitLimit)
		a.Abort()
	}()
	_, err = s.ExecuteSync(context.Background(), nil)
	assert.True(t, core.IsAborted(err))
	assert.Equal(t, core.StateAborted, s.State())
}

func TestSequential_Mutation(t *testing.T) {
	a, b, c := testutil.NewStep("a"), testutil.NewStep("b"), testutil.NewStep("c")
	s, err := NewSequential("seq", a)
	require.NoError(t, err)

	require.NoError(t, s.Add(c))
	require.NoError(t, s.Insert(1, b))
	assert.Equal(t, []core.Command{a, b, c}, s.Commands())

	require.NoError(t, s.Remove(b))
	assert.Nil(t, b.Owner())
	assert.Equal(t, []core.Command{a, c}, s.Commands())
	assert.ErrorIs(t, s.Remove(b), core.ErrNotOwned)

	require.NoError(t, s.Clear())
	assert.Zero(t, s.Len())
	assert.Nil(t, a.Owner())
}

func TestSequential_MutationWhileRunning(t *testing.T) {
	a := testutil.NewStepBuilder("a").Block().Build()
	s, err := NewSequential("seq", a)
	require.NoError(t, err)

	require.NoError(t, s.ExecuteAsync(context.Background(), testutil.NewListener(), nil))
	require.True(t, a.WaitStarted(waitLimit))

	assert.ErrorIs(t, s.Add(testutil.NewStep("x")), core.ErrInvalidState)
	assert.ErrorIs(t, s.Remove(a), core.ErrInvalidState)
	assert.ErrorIs(t, s.Clear(), core.ErrInvalidState)
	s.AbortAndWait()
}

func TestSequential_RejectsOwnedChild(t *testing.T) {
	c := testutil.NewStep("c")
	first, err := NewSequential("first", c)
	require.NoError(t, err)

	second, err := NewSequential("second")
	require.NoError(t, err)
	assert.ErrorIs(t, second.Add(c), core.ErrAlreadyOwned)
	assert.Zero(t, second.Len())
	assert.Same(t, first, c.Owner())

	_, err = NewSequential("third", c)
	assert.ErrorIs(t, err, core.ErrOwnership)
	assert.Same(t, first, c.Owner())
}

func TestSequential_ResetAndRerun(t *testing.T) {
	a := testutil.NewStep("a")
	s, err := NewSequential("seq", a)
	require.NoError(t, err)

	_, err = s.ExecuteSync(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, s.Reset())

	res, err := s.ExecuteSync(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res)
	assert.Equal(t, 2, a.Calls())
}
