package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlan(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ee *exitError
	require.True(t, errors.As(err, &ee), "unexpected error %v", err)
	return ee.ExitCode()
}

func TestRun_Succeeds(t *testing.T) {
	path := writePlan(t, `
name: greet
root:
  type: sequence
  children:
    - type: func
      ref: print
    - type: echo
      value: done
`)
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--arg", "hello", "--log-level", "warn", path}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "hello\n")
	assert.Contains(t, stdout.String(), "greet: succeeded: done")
}

func TestRun_Failure(t *testing.T) {
	ok := writePlan(t, "name: ok\nroot: {type: echo, value: 1}")
	bad := writePlan(t, "name: bad\nroot: {type: fail, message: broken}")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-w", "1", ok, bad}, &stdout, &stderr)
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, stdout.String(), "ok: succeeded: 1")
	assert.Contains(t, stdout.String(), "bad: failed:")
	assert.Contains(t, stdout.String(), "broken")
	assert.Contains(t, stderr.String(), "Operation completed")
	assert.Contains(t, stderr.String(), "run plans")
}

func TestRun_TimeoutAborts(t *testing.T) {
	path := writePlan(t, "name: forever\nroot: {type: func, ref: wait}")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--timeout", "20ms", path}, &stdout, &stderr)
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, stdout.String(), "forever: aborted")
	assert.Contains(t, stderr.String(), "Aborting plans")
}

func TestRun_UsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), nil, &stdout, &stderr)
	assert.Equal(t, 2, exitCode(t, err))
	assert.Contains(t, stderr.String(), "Usage: cmdkit")

	err = run(context.Background(), []string{"--workers", "0", "x.yaml"}, &stdout, &stderr)
	assert.Equal(t, 2, exitCode(t, err))

	err = run(context.Background(), []string{writePlan(t, "root: {type: nope}")}, &stdout, &stderr)
	assert.Equal(t, 2, exitCode(t, err))

	err = run(context.Background(), []string{writePlan(t, "root: {type: func, ref: missing}")}, &stdout, &stderr)
	assert.Equal(t, 2, exitCode(t, err))

	assert.NoError(t, run(context.Background(), []string{"--help"}, &stdout, &stderr))
}

func TestRun_Check(t *testing.T) {
	path := writePlan(t, "name: checked\nroot: {type: func, ref: wait}")
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--check", path}, &stdout, &stderr))
	assert.Equal(t, "checked: ok\n", stdout.String())
}

func TestRun_CheckBuildsPlans(t *testing.T) {
	good := writePlan(t, "name: good\nroot: {type: func, ref: print}")
	bad := writePlan(t, "name: bad\nroot: {type: func, ref: missing}")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--check", good, bad}, &stdout, &stderr)
	assert.Equal(t, 2, exitCode(t, err))
	assert.Contains(t, stdout.String(), "good: ok")
	assert.NotContains(t, stdout.String(), "bad: ok")
}
