package command

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/cmdkit/core"
)

// Sequential coordinates the execution of owned children in order.
//
// Key features:
//   - the first child receives the caller's argument, every later child the
//     result of its predecessor
//   - the first abort or failure stops the sequence; later children never run
//   - aborting the sequence aborts the child currently running
//   - an empty sequence succeeds with its argument
//
// Children can be added and removed between executions only.
type Sequential struct {
	core.Base

	mu       sync.Mutex
	children []core.Command
}

// NewSequential creates a sequence taking ownership of children.
func NewSequential(name string, children ...core.Command) (*Sequential, error) {
	s := &Sequential{}
	s.Base = core.NewBase(name, s)
	for _, c := range children {
		if err := s.Add(c); err != nil {
			_ = s.Clear()
			return nil, err
		}
	}
	return s, nil
}

// Add appends child to the sequence.
func (s *Sequential) Add(child core.Command) error {
	return s.Insert(-1, child)
}

// Insert places child at index i; a negative or out of range index appends.
func (s *Sequential) Insert(i int, child core.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutable(); err != nil {
		return err
	}
	if err := s.TakeOwnership(child); err != nil {
		return err
	}
	if i < 0 || i >= len(s.children) {
		s.children = append(s.children, child)
		return nil
	}
	s.children = append(s.children, nil)
	copy(s.children[i+1:], s.children[i:])
	s.children[i] = child
	return nil
}

// Remove releases child from the sequence.
func (s *Sequential) Remove(child core.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutable(); err != nil {
		return err
	}
	if err := s.RelinquishOwnership(child); err != nil {
		return err
	}
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			break
		}
	}
	return nil
}

// Clear releases every child.
func (s *Sequential) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutable(); err != nil {
		return err
	}
	for _, c := range s.children {
		_ = s.RelinquishOwnership(c)
	}
	s.children = nil
	return nil
}

// Len returns the number of children.
func (s *Sequential) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// Commands returns the children in execution order.
func (s *Sequential) Commands() []core.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Command(nil), s.children...)
}

func (s *Sequential) mutable() error {
	return mutable(s)
}

func mutable(c core.Command) error {
	if c.Disposed() {
		return fmt.Errorf("%w: %s", core.ErrDisposed, c.Name())
	}
	if c.State() == core.StateRunning {
		return fmt.Errorf("%w: %s is running", core.ErrInvalidState, c.Name())
	}
	return nil
}

// RunSync implements core.SyncRunner.
func (s *Sequential) RunSync(ctx context.Context, arg any) (any, error) {
	cur := arg
	for _, child := range s.Commands() {
		if s.AbortRequested() {
			return nil, core.ErrAborted
		}
		res, err := runChild(ctx, child, cur)
		switch {
		case err == nil:
			cur = res
		case core.IsAborted(err):
			return nil, err
		default:
			return nil, &core.ChildError{Child: child.Name(), Err: err}
		}
	}
	return cur, nil
}

// OnDispose forgets the children; core disposes them.
func (s *Sequential) OnDispose() {
	s.mu.Lock()
	s.children = nil
	s.mu.Unlock()
}

// runChild executes child synchronously and returns its own outcome. Monitor
// faults of the child are logged rather than treated as its outcome.
func runChild(ctx context.Context, child core.Command, arg any) (any, error) {
	res, err := child.ExecuteSync(ctx, arg)
	if me, ok := err.(*core.MonitorError); ok {
		core.LoggerFrom(ctx).Warn("monitor fault", "command", child.Name(), "error", me.Fault)
		err = me.Outcome
	}
	return res, err
}
