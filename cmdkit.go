// Package cmdkit provides a high-level façade over the core command model,
// the dispatcher and the stock monitors. Most applications interact with
// this package by:
//  1. Creating a Kit via New() (optionally supplying a logger, monitors or a
//     tracer provider)
//  2. Building command trees with the command package or from a YAML plan
//  3. Executing them synchronously (Execute), asynchronously (ExecuteAsync,
//     Go) or through a worker pool (NewDispatcher)
//
// Every execution started through a Kit carries the Kit's logger and
// monitors in its context, so owned commands are observed as well.
package cmdkit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/cmdkit/core"
	"github.com/hupe1980/cmdkit/dispatcher"
	"github.com/hupe1980/cmdkit/logging"
	"github.com/hupe1980/cmdkit/monitor"
	"github.com/hupe1980/cmdkit/monitor/otelmonitor"
)

// Options configures the Kit instance.
type Options struct {
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// LogExecutions installs a monitor.Log writing one entry per execution.
	LogExecutions bool

	// TracerProvider enables span-per-execution tracing when set.
	TracerProvider trace.TracerProvider

	// Monitors are installed after the built-in ones.
	Monitors []core.Monitor

	// Workers is the default dispatcher pool size.
	Workers int
}

// Kit bundles a logger and monitors applied to every execution it starts.
type Kit struct {
	opts     Options
	stats    *monitor.Stats
	monitors core.Monitors
}

// New creates a new Kit with optional overrides.
func New(optFns ...func(o *Options)) *Kit {
	opts := Options{
		Logger:  logging.NoOpLogger{},
		Workers: 4,
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	k := &Kit{opts: opts, stats: monitor.NewStats()}
	k.monitors = append(k.monitors, k.stats)
	if opts.LogExecutions {
		k.monitors = append(k.monitors, monitor.NewLog(opts.Logger))
	}
	if opts.TracerProvider != nil {
		k.monitors = append(k.monitors, otelmonitor.New(func(o *otelmonitor.Options) {
			o.TracerProvider = opts.TracerProvider
		}))
	}
	for _, m := range opts.Monitors {
		if m != nil {
			k.monitors = append(k.monitors, m)
		}
	}
	return k
}

// Context decorates ctx with the Kit's logger and monitors.
func (k *Kit) Context(ctx context.Context) context.Context {
	ctx = core.WithMonitors(ctx, k.monitors...)
	return core.WithLogger(ctx, k.opts.Logger)
}

// Logger returns the configured logger.
func (k *Kit) Logger() logging.Logger { return k.opts.Logger }

// Execute runs cmd synchronously.
func (k *Kit) Execute(ctx context.Context, cmd core.Command, arg any) (any, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", core.ErrInvalidArgument)
	}
	return cmd.ExecuteSync(k.Context(ctx), arg)
}

// ExecuteAsync starts cmd and reports its outcome to listener.
func (k *Kit) ExecuteAsync(ctx context.Context, cmd core.Command, listener core.Listener, arg any) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", core.ErrInvalidArgument)
	}
	return cmd.ExecuteAsync(k.Context(ctx), listener, arg)
}

// Go starts cmd and returns a future for its outcome.
func (k *Kit) Go(ctx context.Context, cmd core.Command, arg any) (*core.Future, error) {
	return core.Go(k.Context(ctx), cmd, arg)
}

// NewDispatcher creates a worker pool whose executions carry the Kit's
// logger and monitors. size <= 0 uses Options.Workers.
func (k *Kit) NewDispatcher(size int, optFns ...func(o *dispatcher.Options)) (*dispatcher.Dispatcher, error) {
	if size <= 0 {
		size = k.opts.Workers
	}
	return dispatcher.New(size, append([]func(o *dispatcher.Options){
		func(o *dispatcher.Options) {
			o.Context = k.Context(context.Background())
			o.Logger = k.opts.Logger
		},
	}, optFns...)...)
}

// Stats returns the execution counters of every command run through the Kit.
func (k *Kit) Stats() monitor.Counters { return k.stats.Snapshot() }

// Close releases the monitors. Spans of unfinished executions are ended.
func (k *Kit) Close() error { return k.monitors.Close() }
