package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/cmdkit/internal/util"
	"github.com/hupe1980/cmdkit/logging"
)

// Base carries the lifecycle state machine and the ownership node shared by
// every command. Embed it in concrete commands and initialise it with
// NewBase; all exported methods are goroutine-safe.
//
//	type Hello struct{ core.Base }
//
//	func NewHello() *Hello {
//		h := &Hello{}
//		h.Base = core.NewBase("hello", h)
//		return h
//	}
//
//	func (h *Hello) RunSync(ctx context.Context, arg any) (any, error) {
//		return fmt.Sprintf("hello %v", arg), nil
//	}
type Base struct {
	n *node
}

// NewBase constructs the Base for impl. impl must embed the returned Base,
// i.e. it must be the command being constructed. It panics when impl is nil
// or does not implement Command.
func NewBase(name string, impl SyncRunner) Base {
	if impl == nil {
		panic("core: NewBase called with nil runner")
	}
	self, ok := impl.(Command)
	if !ok {
		panic(fmt.Sprintf("core: %T must embed core.Base", impl))
	}
	done := make(chan struct{})
	close(done)
	return Base{n: &node{name: name, impl: impl, self: self, done: done}}
}

// node is the per-command state. owner and children are guarded by the
// package registry lock, everything else by mu.
type node struct {
	name string
	impl SyncRunner
	self Command

	owner    *node
	children []*node

	mu             sync.Mutex
	state          State
	abortRequested bool
	disposed       bool
	exec           *execution
	done           chan struct{}
	result         any
	err            error
}

// execution is the state of one run, from begin to complete.
type execution struct {
	info      Info
	ctx       context.Context
	cancel    context.CancelCauseFunc
	stop      func() bool
	listener  Listener
	monitors  Monitors
	logger    logging.Logger
	done      chan struct{}
	aborted   chan struct{}
	abortOnce sync.Once

	// written by complete before done is closed
	state       State
	result      any
	err         error
	finishFault error
}

func (ex *execution) signalAbort() {
	ex.abortOnce.Do(func() {
		close(ex.aborted)
		ex.cancel(ErrAborted)
	})
}

func (b Base) treeNode() *node { return b.n }

// Name returns the command's diagnostic name.
func (b Base) Name() string { return b.n.name }

// State returns the current lifecycle state.
func (b Base) State() State {
	b.n.mu.Lock()
	defer b.n.mu.Unlock()
	return b.n.state
}

// Result returns the result of the last successful execution.
func (b Base) Result() any {
	b.n.mu.Lock()
	defer b.n.mu.Unlock()
	return b.n.result
}

// Err returns the outcome error of the last finished execution.
func (b Base) Err() error {
	b.n.mu.Lock()
	defer b.n.mu.Unlock()
	return b.n.err
}

// Disposed reports whether Dispose was called.
func (b Base) Disposed() bool {
	b.n.mu.Lock()
	defer b.n.mu.Unlock()
	return b.n.disposed
}

// AbortRequested reports whether an abort was requested for the current or
// upcoming execution. Runners use it between steps.
func (b Base) AbortRequested() bool {
	b.n.mu.Lock()
	defer b.n.mu.Unlock()
	return b.n.abortRequested
}

// AbortSignal returns a channel closed when the current execution is
// aborted. It returns nil (a channel that never fires) when the command is
// not running.
func (b Base) AbortSignal() <-chan struct{} {
	b.n.mu.Lock()
	defer b.n.mu.Unlock()
	if b.n.state != StateRunning {
		return nil
	}
	return b.n.exec.aborted
}

// ExecuteSync implements Command.
func (b Base) ExecuteSync(ctx context.Context, arg any) (any, error) {
	n := b.n
	ex, pending, err := n.begin(ctx, nil)
	if err != nil {
		return nil, err
	}
	startFault := ex.monitors.start(ex.info)

	var (
		result any
		runErr error
	)
	if pending {
		runErr = ErrAborted
	} else {
		result, runErr = n.runSync(ex.ctx, arg)
	}
	// A sync runner reports only through its return values, so this is the
	// first and only completion of ex.
	_ = n.complete(ex, result, runErr)

	if fault := errors.Join(startFault, ex.finishFault); fault != nil {
		return ex.result, &MonitorError{Fault: fault, Outcome: ex.err}
	}
	return ex.result, ex.err
}

// ExecuteAsync implements Command.
func (b Base) ExecuteAsync(ctx context.Context, listener Listener, arg any) error {
	if listener == nil {
		return fmt.Errorf("%w: nil listener", ErrInvalidArgument)
	}
	n := b.n
	ex, pending, err := n.begin(ctx, listener)
	if err != nil {
		return err
	}
	startFault := ex.monitors.start(ex.info)
	c := &Completion{n: n, ex: ex}

	switch ar, native := n.impl.(AsyncRunner); {
	case pending:
		c.report(nil, ErrAborted)
	case native:
		n.runAsync(ar, ex.ctx, c, arg)
	default:
		go func() {
			result, err := n.runSync(ex.ctx, arg)
			c.report(result, err)
		}()
	}

	if startFault != nil {
		return &MonitorError{Fault: startFault}
	}
	return nil
}

// Abort implements Command.
func (b Base) Abort() { b.n.abort(false) }

// AbortAndWait implements Command.
func (b Base) AbortAndWait() {
	b.n.abort(false)
	b.Wait()
}

// Wait implements Command.
func (b Base) Wait() { <-b.Done() }

// WaitTimeout implements Command.
func (b Base) WaitTimeout(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-b.Done():
		return true
	case <-t.C:
		return false
	}
}

// Done implements Command.
func (b Base) Done() <-chan struct{} {
	b.n.mu.Lock()
	defer b.n.mu.Unlock()
	return b.n.done
}

// Reset implements Command.
func (b Base) Reset() error {
	n := b.n
	n.mu.Lock()
	if n.disposed {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDisposed, n.name)
	}
	if n.state == StateRunning {
		n.mu.Unlock()
		return fmt.Errorf("%w: cannot reset running command %s", ErrInvalidState, n.name)
	}
	n.resetLocked()
	n.mu.Unlock()

	if r, ok := n.impl.(Resetter); ok {
		r.OnReset()
	}
	return nil
}

// Dispose implements Command.
func (b Base) Dispose() {
	n := b.n
	n.mu.Lock()
	if n.disposed {
		n.mu.Unlock()
		return
	}
	n.disposed = true
	var done chan struct{}
	if n.state == StateRunning {
		done = n.exec.done
	}
	n.mu.Unlock()

	if done != nil {
		n.abort(true)
		<-done
	}
	if d, ok := n.impl.(Disposer); ok {
		d.OnDispose()
	}
	for _, child := range n.detachChildren() {
		child.self.Dispose()
	}
}

// begin moves n to Running and prepares a new execution. pending reports an
// abort that was requested before the execution started.
func (n *node) begin(parent context.Context, listener Listener) (*execution, bool, error) {
	if parent == nil {
		parent = context.Background()
	}
	parentRunID := n.ownerRunID()

	n.mu.Lock()
	if n.disposed {
		n.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %s", ErrDisposed, n.name)
	}
	if n.state == StateRunning {
		n.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %s is already running", ErrInvalidState, n.name)
	}
	reset := n.state.Terminal()
	if reset {
		n.resetLocked()
	}

	ctx, cancel := context.WithCancelCause(parent)
	ex := &execution{
		info: Info{
			RunID:       util.NewID(),
			ParentRunID: parentRunID,
			Name:        n.name,
			Command:     n.self,
			State:       StateRunning,
			StartedAt:   time.Now(),
		},
		ctx:      ctx,
		cancel:   cancel,
		listener: listener,
		monitors: MonitorsFrom(parent),
		logger:   LoggerFrom(parent),
		done:     make(chan struct{}),
		aborted:  make(chan struct{}),
	}
	pending := n.abortRequested || parent.Err() != nil
	n.abortRequested = pending
	n.state = StateRunning
	n.exec = ex
	n.done = ex.done
	n.mu.Unlock()

	if r, ok := n.impl.(Resetter); ok && reset {
		r.OnReset()
	}
	if pending {
		ex.signalAbort()
	}
	ex.stop = context.AfterFunc(parent, func() { n.abort(true) })
	ex.logger.Debug("command started", "command", n.name, "run_id", ex.info.RunID, "pending_abort", pending)
	return ex, pending, nil
}

// complete records the terminal outcome of ex and notifies monitors and the
// listener. It fails with ErrDoubleCompletion when ex already completed.
func (n *node) complete(ex *execution, result any, err error) error {
	n.mu.Lock()
	if n.exec != ex || n.state != StateRunning {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDoubleCompletion, n.name)
	}
	cancelled := n.abortRequested || ex.ctx.Err() != nil
	state := classify(err, cancelled)
	switch state {
	case StateSucceeded:
		err = nil
	case StateAborted:
		if !IsAborted(err) {
			err = Aborted(err)
		}
		result = nil
	default:
		result = nil
	}
	n.state, n.result, n.err = state, result, err
	ex.state, ex.result, ex.err = state, result, err
	n.mu.Unlock()

	ex.stop()
	ex.cancel(nil)

	ex.info.State = state
	ex.info.FinishedAt = time.Now()
	ex.info.Duration = ex.info.FinishedAt.Sub(ex.info.StartedAt)
	ex.logger.Debug("command finished", "command", n.name, "run_id", ex.info.RunID, "state", state.String(), "duration", ex.info.Duration)

	ex.finishFault = ex.monitors.finish(ex.info, err)
	if ex.finishFault != nil && ex.listener != nil {
		ex.logger.Error("monitor fault", "command", n.name, "run_id", ex.info.RunID, "error", ex.finishFault)
	}
	// done closes before the listener runs.
	close(ex.done)
	if ex.listener != nil {
		n.notify(ex, state, result, err)
	}
	return nil
}

func (n *node) notify(ex *execution, state State, result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			ex.logger.Error("listener panicked", "command", n.name, "run_id", ex.info.RunID, "panic", p, "stack", string(debug.Stack()))
		}
	}()
	switch state {
	case StateSucceeded:
		ex.listener.CommandSucceeded(result)
	case StateAborted:
		ex.listener.CommandAborted()
	default:
		ex.listener.CommandFailed(err)
	}
}

// abort requests cancellation. With onlyRunning set an idle command is left
// untouched instead of recording a pending abort.
func (n *node) abort(onlyRunning bool) {
	n.mu.Lock()
	switch {
	case n.state == StateIdle && !onlyRunning:
		n.abortRequested = true
		n.mu.Unlock()
		return
	case n.state != StateRunning, n.abortRequested:
		n.mu.Unlock()
		return
	}
	n.abortRequested = true
	ex := n.exec
	n.mu.Unlock()

	ex.signalAbort()
	if h, ok := n.impl.(AbortHandler); ok {
		h.OnAbortRequested()
	}
	for _, child := range n.childNodes() {
		child.abort(true)
	}
}

func (n *node) resetLocked() {
	n.state = StateIdle
	n.result = nil
	n.err = nil
	n.abortRequested = false
	n.exec = nil
}

func (n *node) runSync(ctx context.Context, arg any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			perr := &PanicError{Value: p, Stack: debug.Stack()}
			n.logPanic(ctx, perr)
			result, err = nil, perr
		}
	}()
	return n.impl.RunSync(ctx, arg)
}

func (n *node) runAsync(ar AsyncRunner, ctx context.Context, c *Completion, arg any) {
	defer func() {
		if p := recover(); p != nil {
			perr := &PanicError{Value: p, Stack: debug.Stack()}
			n.logPanic(ctx, perr)
			c.report(nil, perr)
		}
	}()
	ar.RunAsync(ctx, c, arg)
}

type stackLogger interface {
	ErrorWithStack(err error, msg string, args ...any)
}

func (n *node) logPanic(ctx context.Context, perr *PanicError) {
	logger := LoggerFrom(ctx)
	if l, ok := logger.(stackLogger); ok {
		l.ErrorWithStack(perr, "command panicked", "command", n.name)
		return
	}
	logger.Error("command panicked", "command", n.name, "panic", perr.Value)
}

// runID returns the run ID of the current execution, or "" when idle.
func (n *node) runID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateRunning {
		return ""
	}
	return n.exec.info.RunID
}

func classify(err error, cancelled bool) State {
	switch {
	case err == nil:
		return StateSucceeded
	case IsAborted(err):
		return StateAborted
	case cancelled && isCancellation(err):
		return StateAborted
	default:
		return StateFailed
	}
}

func isCancellation(err error) bool {
	return walkOutcome(err, func(e error) bool {
		return e == context.Canceled || e == context.DeadlineExceeded
	})
}
