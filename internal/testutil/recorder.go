package testutil

import (
	"sync"
	"time"

	"github.com/hupe1980/cmdkit/core"
)

// Outcome is one terminal callback observed by a Listener.
type Outcome struct {
	State  core.State
	Result any
	Err    error
}

// Listener records every callback it receives. Done is closed after the
// first one.
type Listener struct {
	mu       sync.Mutex
	outcomes []Outcome
	done     chan struct{}
	once     sync.Once
}

var _ core.Listener = (*Listener)(nil)

// NewListener creates a recording listener.
func NewListener() *Listener { return &Listener{done: make(chan struct{})} }

func (l *Listener) record(o Outcome) {
	l.mu.Lock()
	l.outcomes = append(l.outcomes, o)
	l.mu.Unlock()
	l.once.Do(func() { close(l.done) })
}

// CommandSucceeded implements core.Listener.
func (l *Listener) CommandSucceeded(result any) {
	l.record(Outcome{State: core.StateSucceeded, Result: result})
}

// CommandAborted implements core.Listener.
func (l *Listener) CommandAborted() { l.record(Outcome{State: core.StateAborted}) }

// CommandFailed implements core.Listener.
func (l *Listener) CommandFailed(err error) { l.record(Outcome{State: core.StateFailed, Err: err}) }

// Done is closed once the first callback arrived.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Wait blocks until the first callback or d elapsed.
func (l *Listener) Wait(d time.Duration) bool {
	select {
	case <-l.done:
		return true
	case <-time.After(d):
		return false
	}
}

// Outcomes returns all recorded callbacks.
func (l *Listener) Outcomes() []Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Outcome(nil), l.outcomes...)
}

// Event is one monitor notification.
type Event struct {
	Finish  bool
	Info    core.Info
	Outcome error
}

// Monitor records start and finish notifications. Setting StartErr,
// FinishErr or PanicOnStart makes it fault.
type Monitor struct {
	StartErr     error
	FinishErr    error
	PanicOnStart bool

	mu     sync.Mutex
	events []Event
	closed int
}

var _ core.Monitor = (*Monitor)(nil)

// OnStart implements core.Monitor.
func (m *Monitor) OnStart(info core.Info) error {
	m.mu.Lock()
	m.events = append(m.events, Event{Info: info})
	m.mu.Unlock()
	if m.PanicOnStart {
		panic("monitor start")
	}
	return m.StartErr
}

// OnFinish implements core.Monitor.
func (m *Monitor) OnFinish(info core.Info, outcome error) error {
	m.mu.Lock()
	m.events = append(m.events, Event{Finish: true, Info: info, Outcome: outcome})
	m.mu.Unlock()
	return m.FinishErr
}

// Close implements core.Monitor.
func (m *Monitor) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	return nil
}

// Events returns all notifications in arrival order.
func (m *Monitor) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Finished returns the finish notifications for the command named name.
func (m *Monitor) Finished(name string) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Finish && e.Info.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Closed returns how often Close was called.
func (m *Monitor) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
