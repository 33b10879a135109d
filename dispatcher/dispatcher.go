package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/cmdkit/core"
	"github.com/hupe1980/cmdkit/logging"
)

// Finished is delivered once for every dispatched command after it reached
// a terminal state. Err is nil on success, satisfies core.IsAborted when the
// command was aborted and holds the failure otherwise.
type Finished struct {
	Command core.Command
	Err     error
}

// State returns the terminal state Err represents.
func (f Finished) State() core.State { return core.StateOf(f.Err) }

// Stats is a snapshot of the dispatcher counters.
type Stats struct {
	Dispatched uint64
	Succeeded  uint64
	Failed     uint64
	Aborted    uint64
	Running    int
	Queued     int
}

// Options configures a Dispatcher.
//
// Example:
//
//	d, err := dispatcher.New(4, func(o *dispatcher.Options) {
//	    o.Logger = logger
//	    o.OnFinished = func(f dispatcher.Finished) { log.Println(f.Command.Name(), f.State()) }
//	})
type Options struct {
	// Context is handed to every execution. Install monitors and a logger in
	// it with core.WithMonitors and core.WithLogger. Cancelling it aborts
	// the running commands and every command started afterwards.
	// Defaults to context.Background().
	Context context.Context

	// Logger receives dispatcher events. Defaults to NoOp logger.
	Logger logging.Logger

	// OnFinished is called on the worker goroutine after each command
	// finished. It must not block for long; panics are recovered and logged.
	OnFinished func(Finished)
}

// Dispatcher is a fixed-size worker pool executing top-level commands.
//
// Dispatch never blocks: commands beyond the pool size wait in an unbounded
// FIFO queue until a worker is free. Every dispatched command produces
// exactly one Finished event.
type Dispatcher struct {
	size       int
	ctx        context.Context
	logger     logging.Logger
	onFinished func(Finished)

	mu       sync.Mutex
	work     *sync.Cond // signalled when the queue grows or on close
	drained  *sync.Cond // signalled when a command finished
	queue    []core.Command
	running  map[core.Command]int
	closed   bool
	disposed chan struct{}

	g errgroup.Group

	dispatched atomic.Uint64
	succeeded  atomic.Uint64
	failed     atomic.Uint64
	aborted    atomic.Uint64
}

// New starts a dispatcher with size workers. size must be at least 1.
func New(size int, optFns ...func(o *Options)) (*Dispatcher, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: pool size must be at least 1, got %d", core.ErrInvalidArgument, size)
	}
	opts := Options{
		Context: context.Background(),
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	d := &Dispatcher{
		size:       size,
		ctx:        opts.Context,
		logger:     opts.Logger,
		onFinished: opts.OnFinished,
		running:    make(map[core.Command]int),
		disposed:   make(chan struct{}),
	}
	d.work = sync.NewCond(&d.mu)
	d.drained = sync.NewCond(&d.mu)
	for i := 0; i < size; i++ {
		d.g.Go(d.worker)
	}
	return d, nil
}

// Size returns the number of workers.
func (d *Dispatcher) Size() int { return d.size }

// Dispatch enqueues cmd for execution. cmd must be top-level; owned
// commands are rejected with an error wrapping both core.ErrInvalidArgument
// and core.ErrTopLevelRequired, and are not enqueued.
func (d *Dispatcher) Dispatch(cmd core.Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", core.ErrInvalidArgument)
	}
	if err := core.RequireTopLevel(cmd); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidArgument, err)
	}
	if cmd.Disposed() {
		return fmt.Errorf("%w: %s", core.ErrDisposed, cmd.Name())
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("%w: dispatcher", core.ErrDisposed)
	}
	d.queue = append(d.queue, cmd)
	queued, running := len(d.queue), d.runningLocked()
	d.work.Signal()
	d.mu.Unlock()

	d.dispatched.Add(1)
	d.logEvent("dispatched", cmd, queued, running)
	return nil
}

// Wait blocks until the queue is empty and no command is running.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) > 0 || d.runningLocked() > 0 {
		d.drained.Wait()
	}
}

// AbortAndWait aborts every running command and every queued one, then
// blocks until the pool drained. Queued commands are taken off the queue and
// complete as aborted without running, whatever state they were in. The
// dispatcher stays usable afterwards.
func (d *Dispatcher) AbortAndWait() {
	d.mu.Lock()
	running := make([]core.Command, 0, len(d.running))
	for cmd := range d.running {
		running = append(running, cmd)
	}
	queued := d.queue
	d.queue = nil
	for _, cmd := range queued {
		d.running[cmd]++
	}
	d.mu.Unlock()

	d.logger.Debug("dispatcher aborting", "running", len(running), "queued", len(queued))
	for _, cmd := range running {
		cmd.Abort()
	}

	ctx, cancel := context.WithCancelCause(d.ctx)
	cancel(core.ErrAborted)
	for _, cmd := range queued {
		d.execute(ctx, cmd)
		d.finish(cmd)
	}
	d.Wait()
}

// Dispose aborts all work, waits for it and stops the workers. Further
// dispatches fail with core.ErrDisposed. Dispose is idempotent.
func (d *Dispatcher) Dispose() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.disposed
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.AbortAndWait()

	d.mu.Lock()
	d.work.Broadcast()
	d.mu.Unlock()
	_ = d.g.Wait()
	close(d.disposed)
	d.logger.Debug("dispatcher disposed", "workers", d.size)
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	queued, running := len(d.queue), d.runningLocked()
	d.mu.Unlock()
	return Stats{
		Dispatched: d.dispatched.Load(),
		Succeeded:  d.succeeded.Load(),
		Failed:     d.failed.Load(),
		Aborted:    d.aborted.Load(),
		Running:    running,
		Queued:     queued,
	}
}

func (d *Dispatcher) worker() error {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.work.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return nil
		}
		cmd := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.running[cmd]++
		d.mu.Unlock()

		d.execute(d.ctx, cmd)
		d.finish(cmd)
	}
}

func (d *Dispatcher) finish(cmd core.Command) {
	d.mu.Lock()
	if d.running[cmd]--; d.running[cmd] == 0 {
		delete(d.running, cmd)
	}
	d.drained.Broadcast()
	d.mu.Unlock()
}

func (d *Dispatcher) execute(ctx context.Context, cmd core.Command) {
	_, err := cmd.ExecuteSync(ctx, nil)
	if me, ok := err.(*core.MonitorError); ok {
		d.logger.Warn("monitor fault", "command", cmd.Name(), "error", me.Fault)
		err = me.Outcome
	}

	switch core.StateOf(err) {
	case core.StateSucceeded:
		d.succeeded.Add(1)
	case core.StateAborted:
		d.aborted.Add(1)
	default:
		d.failed.Add(1)
	}

	d.mu.Lock()
	queued, running := len(d.queue), d.runningLocked()
	d.mu.Unlock()
	d.logEvent("finished", cmd, queued, running-1)

	if d.onFinished != nil {
		d.notify(Finished{Command: cmd, Err: err})
	}
}

func (d *Dispatcher) notify(f Finished) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("finished handler panicked", "command", f.Command.Name(), "panic", p, "stack", string(debug.Stack()))
		}
	}()
	d.onFinished(f)
}

func (d *Dispatcher) runningLocked() int {
	n := 0
	for _, c := range d.running {
		n += c
	}
	return n
}

type dispatchLogger interface {
	LogDispatch(event, command string, queued, running int)
}

func (d *Dispatcher) logEvent(event string, cmd core.Command, queued, running int) {
	if l, ok := d.logger.(dispatchLogger); ok {
		l.LogDispatch(event, cmd.Name(), queued, running)
		return
	}
	d.logger.Debug("dispatcher "+event, "command", cmd.Name(), "queued", queued, "running", running)
}
