package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/cmdkit/core"
)

// StepBuilder provides a fluent helper for constructing scripted leaf
// commands in tests.
// Example:
//
//	s := testutil.NewStepBuilder("a").Result(42).Build()
//	f := testutil.NewStepBuilder("b").Fail(errBoom).Build()
//	blocker := testutil.NewStepBuilder("c").Block().Build()
//
// Chain only the parts you need; a bare step echoes its argument.
type StepBuilder struct {
	name      string
	result    any
	hasResult bool
	err       error
	block     bool
	delay     time.Duration
	panicVal  any
	fn        func(ctx context.Context, arg any) (any, error)
}

// NewStepBuilder creates a builder for a step named name.
func NewStepBuilder(name string) *StepBuilder { return &StepBuilder{name: name} }

// Result makes the step succeed with v instead of echoing its argument (chainable).
func (b *StepBuilder) Result(v any) *StepBuilder { b.result, b.hasResult = v, true; return b }

// Fail makes the step fail with err (chainable).
func (b *StepBuilder) Fail(err error) *StepBuilder { b.err = err; return b }

// Block makes the step wait until it is aborted (chainable).
func (b *StepBuilder) Block() *StepBuilder { b.block = true; return b }

// Delay makes the step wait d (abortable) before reporting (chainable).
func (b *StepBuilder) Delay(d time.Duration) *StepBuilder { b.delay = d; return b }

// Panic makes the step panic with v (chainable).
func (b *StepBuilder) Panic(v any) *StepBuilder { b.panicVal = v; return b }

// Func replaces the scripted behaviour with fn (chainable).
func (b *StepBuilder) Func(fn func(ctx context.Context, arg any) (any, error)) *StepBuilder {
	b.fn = fn
	return b
}

// Build creates the step.
func (b *StepBuilder) Build() *Step {
	s := &Step{script: *b, started: make(chan any, 64)}
	s.Base = core.NewBase(b.name, s)
	return s
}

// NewStep is shorthand for a step echoing its argument.
func NewStep(name string) *Step { return NewStepBuilder(name).Build() }

// Step is a scripted leaf command recording every run.
type Step struct {
	core.Base
	script  StepBuilder
	started chan any

	mu    sync.Mutex
	args  []any
	abort int
}

// RunSync implements core.SyncRunner.
func (s *Step) RunSync(ctx context.Context, arg any) (any, error) {
	s.mu.Lock()
	s.args = append(s.args, arg)
	s.mu.Unlock()
	select {
	case s.started <- arg:
	default:
	}

	sc := s.script
	if sc.panicVal != nil {
		panic(sc.panicVal)
	}
	if sc.fn != nil {
		return sc.fn(ctx, arg)
	}
	if sc.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := core.Sleep(ctx, sc.delay); err != nil {
		return nil, err
	}
	if sc.err != nil {
		return nil, sc.err
	}
	if sc.hasResult {
		return sc.result, nil
	}
	return arg, nil
}

// OnAbortRequested implements core.AbortHandler.
func (s *Step) OnAbortRequested() {
	s.mu.Lock()
	s.abort++
	s.mu.Unlock()
}

// Started receives the argument of every run as it starts.
func (s *Step) Started() <-chan any { return s.started }

// Calls returns how many times the step's work ran.
func (s *Step) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.args)
}

// Args returns the arguments of all runs in order.
func (s *Step) Args() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.args...)
}

// AbortRequests returns how many aborts reached the step while running.
func (s *Step) AbortRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abort
}

// WaitStarted blocks until the step started a run or d elapsed.
func (s *Step) WaitStarted(d time.Duration) bool {
	select {
	case <-s.started:
		return true
	case <-time.After(d):
		return false
	}
}
