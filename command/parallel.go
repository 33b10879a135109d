package command

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/cmdkit/core"
)

// ParallelFlags tune how a Parallel reports failures.
type ParallelFlags uint8

const (
	// AggregateErrors reports every unsuccessful child in an
	// *core.AggregateError instead of only the first one observed.
	AggregateErrors ParallelFlags = 1 << iota
	// AbortUponFailure aborts all running siblings once a child fails.
	AbortUponFailure

	parallelFlagsMask = AggregateErrors | AbortUponFailure
)

// Validate rejects unknown bits.
func (f ParallelFlags) Validate() error {
	if f&^parallelFlagsMask != 0 {
		return fmt.Errorf("%w: unknown parallel flags %#x", core.ErrInvalidArgument, uint8(f&^parallelFlagsMask))
	}
	return nil
}

// Parallel coordinates the concurrent execution of owned children.
//
// Key features:
//   - every child receives the caller's argument and runs asynchronously
//   - the group completes only after all children are terminal
//   - all children succeeding makes the group succeed with its argument
//   - any child failing or aborting makes the group fail with a
//     *core.ChildError (or *core.AggregateError with AggregateErrors)
//   - aborting the group aborts all children and reports an abort
//
// An empty group succeeds immediately.
type Parallel struct {
	core.Base

	mu       sync.Mutex
	flags    ParallelFlags
	children []core.Command
}

// NewParallel creates a group taking ownership of children.
func NewParallel(name string, flags ParallelFlags, children ...core.Command) (*Parallel, error) {
	if err := flags.Validate(); err != nil {
		return nil, err
	}
	p := &Parallel{flags: flags}
	p.Base = core.NewBase(name, p)
	for _, c := range children {
		if err := p.Add(c); err != nil {
			_ = p.Clear()
			return nil, err
		}
	}
	return p, nil
}

// Flags returns the current flags.
func (p *Parallel) Flags() ParallelFlags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags
}

// SetFlags replaces the flags between executions.
func (p *Parallel) SetFlags(flags ParallelFlags) error {
	if err := flags.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := mutable(p); err != nil {
		return err
	}
	p.flags = flags
	return nil
}

// Add takes ownership of child and adds it to the group.
func (p *Parallel) Add(child core.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := mutable(p); err != nil {
		return err
	}
	if err := p.TakeOwnership(child); err != nil {
		return err
	}
	p.children = append(p.children, child)
	return nil
}

// Remove releases child from the group.
func (p *Parallel) Remove(child core.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := mutable(p); err != nil {
		return err
	}
	if err := p.RelinquishOwnership(child); err != nil {
		return err
	}
	for i, c := range p.children {
		if c == child {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	return nil
}

// Clear releases every child.
func (p *Parallel) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := mutable(p); err != nil {
		return err
	}
	for _, c := range p.children {
		_ = p.RelinquishOwnership(c)
	}
	p.children = nil
	return nil
}

// Len returns the number of children.
func (p *Parallel) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.children)
}

// Commands returns a snapshot of the children.
func (p *Parallel) Commands() []core.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Command(nil), p.children...)
}

// RunSync implements core.SyncRunner.
func (p *Parallel) RunSync(ctx context.Context, arg any) (any, error) {
	p.mu.Lock()
	flags := p.flags
	children := append([]core.Command(nil), p.children...)
	p.mu.Unlock()
	if len(children) == 0 {
		return arg, nil
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		errs       []error
		anyAborted bool
		failed     bool
	)
	record := func(child core.Command, err error, aborted bool) {
		mu.Lock()
		errs = append(errs, &core.ChildError{Child: child.Name(), Err: err})
		anyAborted = anyAborted || aborted
		first := !aborted && !failed
		failed = failed || !aborted
		mu.Unlock()

		if first && flags&AbortUponFailure != 0 {
			for _, sibling := range children {
				if sibling != child {
					_ = p.AbortChild(sibling)
				}
			}
		}
	}

	logger := core.LoggerFrom(ctx)
	for _, child := range children {
		wg.Add(1)
		l := core.ListenerFuncs{
			OnSucceeded: func(any) { wg.Done() },
			OnAborted: func() {
				record(child, abortErr(child), true)
				wg.Done()
			},
			OnFailed: func(err error) {
				record(child, err, false)
				wg.Done()
			},
		}
		if err := child.ExecuteAsync(ctx, l, arg); err != nil {
			var me *core.MonitorError
			if errors.As(err, &me) {
				logger.Warn("monitor fault", "command", child.Name(), "error", me.Fault)
				continue
			}
			record(child, err, false)
			wg.Done()
		}
	}
	wg.Wait()

	if len(errs) == 0 {
		return arg, nil
	}
	if anyAborted && p.AbortRequested() {
		return nil, core.ErrAborted
	}
	if flags&AggregateErrors != 0 {
		return nil, &core.AggregateError{Errors: errs}
	}
	return nil, errs[0]
}

// OnDispose forgets the children; core disposes them.
func (p *Parallel) OnDispose() {
	p.mu.Lock()
	p.children = nil
	p.mu.Unlock()
}

// abortErr returns the abort error stored by an aborted child.
func abortErr(c core.Command) error {
	if err := c.Err(); core.IsAborted(err) {
		return err
	}
	return core.ErrAborted
}
