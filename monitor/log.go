// Package monitor provides stock core.Monitor implementations: structured
// logging of every execution and per-state counters.
package monitor

import (
	"time"

	"github.com/hupe1980/cmdkit/core"
	"github.com/hupe1980/cmdkit/logging"
)

// Log writes one entry per started and finished execution.
type Log struct {
	logger logging.Logger
}

var _ core.Monitor = (*Log)(nil)

// NewLog creates a Log monitor. A nil logger discards everything.
func NewLog(logger logging.Logger) *Log {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Log{logger: logger}
}

type commandRunLogger interface {
	LogCommandRun(command, runID, state string, dur time.Duration, err error)
}

// OnStart implements core.Monitor.
func (l *Log) OnStart(info core.Info) error {
	l.logger.Debug("command started", "command", info.Name, "run_id", info.RunID, "parent_run_id", info.ParentRunID)
	return nil
}

// OnFinish implements core.Monitor.
func (l *Log) OnFinish(info core.Info, outcome error) error {
	if rl, ok := l.logger.(commandRunLogger); ok {
		rl.LogCommandRun(info.Name, info.RunID, info.State.String(), info.Duration, outcome)
		return nil
	}
	args := []any{"command", info.Name, "run_id", info.RunID, "state", info.State.String(), "duration", info.Duration}
	switch info.State {
	case core.StateFailed:
		l.logger.Error("command failed", append(args, "error", outcome)...)
	case core.StateAborted:
		l.logger.Warn("command aborted", args...)
	default:
		l.logger.Info("command finished", args...)
	}
	return nil
}

// Close implements core.Monitor.
func (l *Log) Close() error { return nil }
