// cmdkit runs declarative YAML command plans through a bounded dispatcher.
//
// Every plan file given on the command line is built into a command tree and
// dispatched; up to --workers plans run at once. SIGINT or SIGTERM aborts
// everything that is still queued or running. The exit status is 0 when every
// plan succeeded, 1 when any failed or was aborted and 2 on usage errors.
//
// Settings default to the CMDKIT_* environment variables (see package
// config); flags override them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/hupe1980/cmdkit"
	"github.com/hupe1980/cmdkit/config"
	"github.com/hupe1980/cmdkit/core"
	"github.com/hupe1980/cmdkit/dispatcher"
	"github.com/hupe1980/cmdkit/internal/otelsetup"
	"github.com/hupe1980/cmdkit/plan"
)

// exitError carries the process exit status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func usage(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return usage("%w", err)
	}

	var (
		arg       string
		timeout   time.Duration
		logRuns   bool
		checkOnly bool
	)
	flagSet := pflag.NewFlagSet("cmdkit", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "number of plans running concurrently")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flagSet.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (json, text)")
	flagSet.StringVar(&cfg.OtelEndpoint, "otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP endpoint for execution traces")
	flagSet.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "time allowed to flush traces on exit")
	flagSet.StringVar(&arg, "arg", "", "argument passed to every plan's root command")
	flagSet.DurationVarP(&timeout, "timeout", "t", 0, "abort all plans after this duration (0 disables)")
	flagSet.BoolVar(&logRuns, "log-runs", false, "log every command execution, not only plan outcomes")
	flagSet.BoolVar(&checkOnly, "check", false, "validate the plans and exit")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: cmdkit [flags] PLAN.yaml...\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return usage("%w", err)
	}
	if err := cfg.Validate(); err != nil {
		return usage("%w", err)
	}
	paths := flagSet.Args()
	if len(paths) == 0 {
		flagSet.Usage()
		return usage("no plan given")
	}

	logger := cfg.NewLogger(stderr).WithComponent("cli")

	plans := make([]*plan.Plan, 0, len(paths))
	for _, path := range paths {
		p, err := plan.Load(path)
		if err != nil {
			return usage("%w", err)
		}
		if p.Name == "" {
			p.Name = path
		}
		plans = append(plans, p)
	}
	funcs := builtinFuncs(stdout)
	if checkOnly {
		for _, p := range plans {
			cmd, err := plan.Build(p, func(o *plan.BuildOptions) { o.Funcs = funcs })
			if err != nil {
				return usage("%s: %w", p.Name, err)
			}
			cmd.Dispose()
			fmt.Fprintf(stdout, "%s: ok\n", p.Name)
		}
		return nil
	}

	tp, shutdownTracing, err := otelsetup.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("Trace shutdown failed", "error", err)
		}
	}()

	kit := cmdkit.New(func(o *cmdkit.Options) {
		o.Logger = logger
		o.LogExecutions = logRuns
		o.Workers = cfg.Workers
		if cfg.TracingEnabled() {
			o.TracerProvider = tp
		}
	})
	defer func() { _ = kit.Close() }()

	var (
		mu       sync.Mutex
		failures int
	)
	d, err := kit.NewDispatcher(cfg.Workers, func(o *dispatcher.Options) {
		o.OnFinished = func(f dispatcher.Finished) {
			mu.Lock()
			defer mu.Unlock()
			switch f.State() {
			case core.StateSucceeded:
				fmt.Fprintf(stdout, "%s: succeeded: %v\n", f.Command.Name(), f.Command.Result())
			case core.StateAborted:
				failures++
				fmt.Fprintf(stdout, "%s: aborted\n", f.Command.Name())
			default:
				failures++
				fmt.Fprintf(stdout, "%s: failed: %v\n", f.Command.Name(), f.Err)
			}
		}
	})
	if err != nil {
		return err
	}
	defer d.Dispose()

	for _, p := range plans {
		cmd, err := plan.Build(p, func(o *plan.BuildOptions) { o.Funcs = funcs })
		if err != nil {
			d.AbortAndWait()
			return usage("%s: %w", p.Name, err)
		}
		root, err := seeded(p.Name, cmd, arg)
		if err != nil {
			cmd.Dispose()
			return err
		}
		if err := d.Dispatch(root); err != nil {
			return err
		}
	}

	stopTimer := logger.StartTimer("run plans")
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	idle := make(chan struct{})
	go func() {
		d.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-waitCtx.Done():
		logger.Warn("Aborting plans", "cause", context.Cause(waitCtx))
		d.AbortAndWait()
		<-idle
	}
	stopTimer()

	stats := kit.Stats()
	logger.Info("Plans finished",
		"plans", len(plans),
		"executions", stats.Started,
		"failed", stats.Failed,
		"aborted", stats.Aborted,
	)
	mu.Lock()
	defer mu.Unlock()
	if failures > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d of %d plans did not succeed", failures, len(plans))}
	}
	return nil
}
