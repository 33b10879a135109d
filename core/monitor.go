package core

import (
	"errors"
	"fmt"
	"time"
)

// Info describes one execution to monitors.
type Info struct {
	// RunID identifies this execution; it is unique per run, not per command.
	RunID string
	// ParentRunID is the RunID of the owner's current execution, or empty for
	// top-level commands.
	ParentRunID string
	Name        string
	Command     Command
	State       State
	StartedAt   time.Time
	FinishedAt  time.Time
	Duration    time.Duration
}

// Monitor observes every execution started with its context. Hooks are
// called synchronously on the executing goroutine and must be safe for
// concurrent use. Returned errors and panics are reported as monitor faults
// and never change a command's outcome.
type Monitor interface {
	OnStart(info Info) error
	OnFinish(info Info, outcome error) error
	Close() error
}

// MonitorFuncs adapts closures to Monitor.
type MonitorFuncs struct {
	Start  func(info Info) error
	Finish func(info Info, outcome error) error
}

func (m MonitorFuncs) OnStart(info Info) error {
	if m.Start == nil {
		return nil
	}
	return m.Start(info)
}

func (m MonitorFuncs) OnFinish(info Info, outcome error) error {
	if m.Finish == nil {
		return nil
	}
	return m.Finish(info, outcome)
}

func (MonitorFuncs) Close() error { return nil }

// Monitors is an ordered list of monitors notified as one.
type Monitors []Monitor

func (ms Monitors) start(info Info) error {
	var errs []error
	for _, m := range ms {
		errs = append(errs, guard(m, "start", func() error { return m.OnStart(info) }))
	}
	return errors.Join(errs...)
}

func (ms Monitors) finish(info Info, outcome error) error {
	var errs []error
	for _, m := range ms {
		errs = append(errs, guard(m, "finish", func() error { return m.OnFinish(info, outcome) }))
	}
	return errors.Join(errs...)
}

// Close releases every monitor and joins their errors.
func (ms Monitors) Close() error {
	var errs []error
	for _, m := range ms {
		errs = append(errs, guard(m, "close", m.Close))
	}
	return errors.Join(errs...)
}

func guard(m Monitor, hook string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("monitor %T %s hook panicked: %v", m, hook, p)
		}
	}()
	if err = fn(); err != nil {
		err = fmt.Errorf("monitor %T %s hook: %w", m, hook, err)
	}
	return err
}
