package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cmdkit/core"
	"github.com/hupe1980/cmdkit/internal/testutil"
)

type mockMonitor struct {
	mock.Mock
}

func (m *mockMonitor) OnStart(info core.Info) error {
	return m.Called(info.Name).Error(0)
}

func (m *mockMonitor) OnFinish(info core.Info, outcome error) error {
	return m.Called(info.Name, info.State).Error(0)
}

func (m *mockMonitor) Close() error { return m.Called().Error(0) }

func TestMonitors_ObserveEveryExecution(t *testing.T) {
	mon := &testutil.Monitor{}
	ctx := core.WithMonitors(context.Background(), mon)

	leaf := testutil.NewStep("leaf")
	g, err := newGroup("g", leaf)
	require.NoError(t, err)

	_, err = g.ExecuteSync(ctx, "x")
	require.NoError(t, err)

	events := mon.Events()
	require.Len(t, events, 4)
	assert.Equal(t, "g", events[0].Info.Name)
	assert.Equal(t, "leaf", events[1].Info.Name)
	assert.True(t, events[2].Finish)
	assert.Equal(t, "leaf", events[2].Info.Name)
	assert.Equal(t, core.StateSucceeded, events[2].Info.State)
	assert.Equal(t, "g", events[3].Info.Name)

	gRun := events[0].Info.RunID
	assert.NotEmpty(t, gRun)
	assert.Empty(t, events[0].Info.ParentRunID)
	assert.Equal(t, gRun, events[1].Info.ParentRunID)
	assert.NotEqual(t, gRun, events[1].Info.RunID)
	assert.False(t, events[3].Info.FinishedAt.Before(events[3].Info.StartedAt))
}

func TestMonitors_WithMockMonitor(t *testing.T) {
	m := &mockMonitor{}
	m.On("OnStart", "s").Return(nil).Once()
	m.On("OnFinish", "s", core.StateSucceeded).Return(nil).Once()
	m.On("Close").Return(nil).Once()

	ctx := core.WithMonitors(context.Background(), m)
	_, err := testutil.NewStep("s").ExecuteSync(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, core.MonitorsFrom(ctx).Close())

	m.AssertExpectations(t)
}

func TestMonitorFault_Sync(t *testing.T) {
	startFault := errors.New("start fault")
	mon := &testutil.Monitor{StartErr: startFault}
	ctx := core.WithMonitors(context.Background(), mon)

	s := testutil.NewStepBuilder("s").Result(7).Build()
	res, err := s.ExecuteSync(ctx, nil)

	var me *core.MonitorError
	require.ErrorAs(t, err, &me)
	assert.ErrorIs(t, me.Fault, startFault)
	assert.NoError(t, me.Outcome)
	assert.Equal(t, 7, res)
	assert.Equal(t, core.StateSucceeded, s.State())
	assert.Equal(t, core.StateSucceeded, core.StateOf(err))
	assert.Len(t, mon.Finished("s"), 1)
}

func TestMonitorFault_PanicDoesNotCorruptState(t *testing.T) {
	mon := &testutil.Monitor{PanicOnStart: true}
	ctx := core.WithMonitors(context.Background(), mon)

	boom := errors.New("boom")
	s := testutil.NewStepBuilder("s").Fail(boom).Build()
	_, err := s.ExecuteSync(ctx, nil)

	var me *core.MonitorError
	require.ErrorAs(t, err, &me)
	assert.ErrorIs(t, me.Outcome, boom)
	assert.Equal(t, core.StateFailed, s.State())
	assert.Equal(t, core.StateFailed, core.StateOf(err))
}

func TestMonitorFault_Async(t *testing.T) {
	mon := &testutil.Monitor{StartErr: errors.New("start"), FinishErr: errors.New("finish")}
	ctx := core.WithMonitors(context.Background(), mon)

	s := testutil.NewStep("s")
	l := testutil.NewListener()
	err := s.ExecuteAsync(ctx, l, "v")

	var me *core.MonitorError
	require.ErrorAs(t, err, &me)
	require.True(t, l.Wait(waitLimit))
	assert.Equal(t, []testutil.Outcome{{State: core.StateSucceeded, Result: "v"}}, l.Outcomes())
}

func TestWithMonitors_DoesNotMutateParent(t *testing.T) {
	a, b := &testutil.Monitor{}, &testutil.Monitor{}
	parent := core.WithMonitors(context.Background(), a)
	child := core.WithMonitors(parent, b, nil)

	assert.Len(t, core.MonitorsFrom(parent), 1)
	assert.Len(t, core.MonitorsFrom(child), 2)
	assert.Empty(t, core.MonitorsFrom(context.Background()))

	require.NoError(t, core.MonitorsFrom(child).Close())
	assert.Equal(t, 1, a.Closed())
	assert.Equal(t, 1, b.Closed())
}

func TestLoggerFrom_DefaultsToNoOp(t *testing.T) {
	assert.NotNil(t, core.LoggerFrom(context.Background()))
	assert.NotNil(t, core.LoggerFrom(core.WithLogger(context.Background(), nil)))
}

func TestSleep(t *testing.T) {
	require.NoError(t, core.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(core.ErrAborted)
	err := core.Sleep(ctx, time.Hour)
	assert.Equal(t, core.ErrAborted, err)
}
