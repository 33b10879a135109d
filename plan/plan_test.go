package plan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cmdkit/command"
	"github.com/hupe1980/cmdkit/core"
)

const nightly = `
name: nightly
root:
  type: sequence
  name: steps
  children:
    - type: echo
      name: hello
      value: hi
    - type: pause
      duration: 1ms
    - type: retry
      attempts: 3
      delay: 1ms
      child:
        type: func
        ref: flaky
    - type: finally
      child:
        type: timeout
        limit: 1s
        child:
          type: echo
      cleanup:
        type: echo
        name: cleanup
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(nightly))
	require.NoError(t, err)

	assert.Equal(t, "nightly", p.Name)
	assert.Equal(t, TypeSequence, p.Root.Type)
	require.Len(t, p.Root.Children, 4)
	assert.Equal(t, time.Millisecond, p.Root.Children[1].Duration.Std())
	assert.Equal(t, 3, p.Root.Children[2].Attempts)
	assert.Equal(t, "flaky", p.Root.Children[2].Child.Ref)
	assert.Equal(t, time.Second, p.Root.Children[3].Child.Limit.Std())
}

func TestBuild_RunsTree(t *testing.T) {
	p, err := Parse([]byte(nightly))
	require.NoError(t, err)

	calls := 0
	cmd, err := Build(p, func(o *BuildOptions) {
		o.Funcs["flaky"] = func(_ context.Context, arg any) (any, error) {
			calls++
			if calls < 2 {
				return nil, errors.New("flaky")
			}
			return arg, nil
		}
	})
	require.NoError(t, err)
	defer cmd.Dispose()

	assert.Equal(t, "steps", cmd.Name())
	assert.Len(t, cmd.Children(), 4)

	res, err := cmd.ExecuteSync(context.Background(), "in")
	require.NoError(t, err)
	assert.Equal(t, "hi", res, "echo without value passes its argument through")
	assert.Equal(t, 2, calls)
}

func TestBuild_ParallelFlagsAndFail(t *testing.T) {
	p, err := Parse([]byte(`
root:
  type: parallel
  aggregate_errors: true
  abort_upon_failure: true
  children:
    - type: fail
      message: first
    - type: periodic
      interval: 1h
      child:
        type: echo
`))
	require.NoError(t, err)

	cmd, err := Build(p)
	require.NoError(t, err)
	defer cmd.Dispose()

	par, ok := cmd.(*command.Parallel)
	require.True(t, ok)
	assert.Equal(t, command.AggregateErrors|command.AbortUponFailure, par.Flags())

	_, err = cmd.ExecuteSync(context.Background(), nil)
	var agg *core.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Contains(t, err.Error(), "first")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name, doc, contains string
	}{
		{"empty", ``, "empty document"},
		{"missing root", `name: x`, "missing root"},
		{"unknown field", "root:\n  type: echo\n  colour: red", "colour"},
		{"unknown type", "root:\n  type: teleport", `unknown type "teleport"`},
		{"bad duration", "root:\n  type: pause\n  duration: soon", "soon"},
		{"missing child", "root:\n  type: retry\n  attempts: 2", "retry needs a child"},
		{"zero attempts", "root:\n  type: retry\n  child: {type: echo}", "attempts must be positive"},
		{"nested", "root:\n  type: sequence\n  children:\n    - type: fail", "root.children[0]: fail needs a message"},
		{"stray child", "root:\n  type: echo\n  child: {type: echo}", "echo takes no child"},
		{"missing cleanup", "root:\n  type: finally\n  child: {type: echo}", "needs a cleanup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPlan)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestBuild_UnknownFunc(t *testing.T) {
	p, err := Parse([]byte("root:\n  type: sequence\n  children:\n    - type: echo\n    - type: func\n      ref: nope"))
	require.NoError(t, err)

	_, err = Build(p)
	assert.ErrorIs(t, err, ErrInvalidPlan)
	assert.Contains(t, err.Error(), `root.children[1]: unknown func "nope"`)

	_, err = Build(nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("root:\n  type: echo\n  value: 42"), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	cmd, err := Build(p)
	require.NoError(t, err)

	res, err := cmd.ExecuteSync(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 42, res)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
