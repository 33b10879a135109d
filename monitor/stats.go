package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/cmdkit/core"
)

// Counters is a snapshot of a Stats monitor.
type Counters struct {
	Started   uint64
	Succeeded uint64
	Failed    uint64
	Aborted   uint64
	Running   int64
	// Busy is the summed duration of all finished executions.
	Busy time.Duration
}

// Stats counts executions per terminal state. It also tracks counters per
// command name, retrievable with ByName.
type Stats struct {
	started   atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	aborted   atomic.Uint64
	running   atomic.Int64
	busy      atomic.Int64

	mu     sync.Mutex
	byName map[string]*Counters
}

var _ core.Monitor = (*Stats)(nil)

// NewStats creates an empty Stats monitor.
func NewStats() *Stats {
	return &Stats{byName: map[string]*Counters{}}
}

// OnStart implements core.Monitor.
func (s *Stats) OnStart(info core.Info) error {
	s.started.Add(1)
	s.running.Add(1)
	s.mu.Lock()
	c := s.named(info.Name)
	c.Started++
	c.Running++
	s.mu.Unlock()
	return nil
}

// OnFinish implements core.Monitor.
func (s *Stats) OnFinish(info core.Info, _ error) error {
	s.running.Add(-1)
	s.busy.Add(int64(info.Duration))

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.named(info.Name)
	c.Running--
	c.Busy += info.Duration
	switch info.State {
	case core.StateSucceeded:
		s.succeeded.Add(1)
		c.Succeeded++
	case core.StateAborted:
		s.aborted.Add(1)
		c.Aborted++
	default:
		s.failed.Add(1)
		c.Failed++
	}
	return nil
}

// Close implements core.Monitor.
func (s *Stats) Close() error { return nil }

// Snapshot returns the totals.
func (s *Stats) Snapshot() Counters {
	return Counters{
		Started:   s.started.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Aborted:   s.aborted.Load(),
		Running:   s.running.Load(),
		Busy:      time.Duration(s.busy.Load()),
	}
}

// ByName returns the counters of commands named name.
func (s *Stats) ByName(name string) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byName[name]; ok {
		return *c
	}
	return Counters{}
}

func (s *Stats) named(name string) *Counters {
	c, ok := s.byName[name]
	if !ok {
		c = &Counters{}
		s.byName[name] = c
	}
	return c
}
