package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cmdkit/core"
	"github.com/hupe1980/cmdkit/internal/testutil"
)

func TestTakeOwnership_AlreadyOwned(t *testing.T) {
	c := testutil.NewStep("c")
	first, err := newGroup("first", c)
	require.NoError(t, err)

	second, err := newGroup("second")
	require.NoError(t, err)

	err = second.TakeOwnership(c)
	require.ErrorIs(t, err, core.ErrAlreadyOwned)
	assert.ErrorIs(t, err, core.ErrOwnership)

	assert.Same(t, first, c.Owner())
	assert.Equal(t, []core.Command{c}, first.Children())
	assert.Empty(t, second.Children())
}

func TestTakeOwnership_RejectsCycles(t *testing.T) {
	leaf := testutil.NewStep("leaf")
	inner, err := newGroup("inner", leaf)
	require.NoError(t, err)
	outer, err := newGroup("outer", inner)
	require.NoError(t, err)

	assert.ErrorIs(t, outer.TakeOwnership(outer), core.ErrCycle)
	assert.ErrorIs(t, inner.TakeOwnership(outer), core.ErrCycle)

	// outer is top-level, so ownership would be possible without the cycle
	assert.Nil(t, outer.Owner())
	assert.Equal(t, []core.Command{leaf}, inner.Children())
}

func TestTakeOwnership_Errors(t *testing.T) {
	g, err := newGroup("g")
	require.NoError(t, err)

	assert.ErrorIs(t, g.TakeOwnership(nil), core.ErrInvalidArgument)

	disposed := testutil.NewStep("disposed")
	disposed.Dispose()
	assert.ErrorIs(t, g.TakeOwnership(disposed), core.ErrDisposed)
}

func TestRelinquishOwnership(t *testing.T) {
	c := testutil.NewStep("c")
	g, err := newGroup("g", c)
	require.NoError(t, err)

	other, err := newGroup("other")
	require.NoError(t, err)
	assert.ErrorIs(t, other.RelinquishOwnership(c), core.ErrNotOwned)

	require.NoError(t, g.RelinquishOwnership(c))
	assert.Nil(t, c.Owner())
	assert.True(t, core.IsTopLevel(c))
	assert.Empty(t, g.Children())

	require.NoError(t, other.TakeOwnership(c))
	assert.Same(t, other, c.Owner())
}

func TestRelinquishOwnership_RunningChild(t *testing.T) {
	c := testutil.NewStepBuilder("c").Block().Build()
	g, err := newGroup("g", c)
	require.NoError(t, err)

	require.NoError(t, c.ExecuteAsync(context.Background(), testutil.NewListener(), nil))
	require.True(t, c.WaitStarted(waitLimit))

	assert.ErrorIs(t, g.RelinquishOwnership(c), core.ErrInvalidState)
	assert.Same(t, g, c.Owner())
	c.AbortAndWait()
}

func TestAbortChildAndResetChildAbort(t *testing.T) {
	c := testutil.NewStep("c")
	g, err := newGroup("g", c)
	require.NoError(t, err)

	stranger := testutil.NewStep("stranger")
	assert.ErrorIs(t, g.AbortChild(stranger), core.ErrNotOwned)
	assert.ErrorIs(t, g.ResetChildAbort(stranger), core.ErrNotOwned)

	require.NoError(t, g.AbortChild(c))
	assert.True(t, c.AbortRequested())
	require.NoError(t, g.ResetChildAbort(c))
	assert.False(t, c.AbortRequested())

	res, err := c.ExecuteSync(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}

func TestRequireTopLevel(t *testing.T) {
	c := testutil.NewStep("c")
	require.NoError(t, core.RequireTopLevel(c))

	_, err := newGroup("g", c)
	require.NoError(t, err)

	err = core.RequireTopLevel(c)
	assert.ErrorIs(t, err, core.ErrTopLevelRequired)
	assert.ErrorIs(t, err, core.ErrOwnership)
	assert.ErrorIs(t, core.RequireTopLevel(nil), core.ErrInvalidArgument)
}

func TestDispose_ReleasesChildren(t *testing.T) {
	c := testutil.NewStep("c")
	g, err := newGroup("g", c)
	require.NoError(t, err)

	g.Dispose()
	assert.Nil(t, c.Owner())
	assert.True(t, c.Disposed())
}
