package core

import (
	"context"

	"github.com/hupe1980/cmdkit/logging"
)

type monitorsKey struct{}

type loggerKey struct{}

// WithMonitors returns a context whose executions notify ms in addition to
// the monitors already installed in ctx. The installed list is never
// mutated; every call produces a new one.
func WithMonitors(ctx context.Context, ms ...Monitor) context.Context {
	prev := MonitorsFrom(ctx)
	next := make(Monitors, 0, len(prev)+len(ms))
	next = append(next, prev...)
	for _, m := range ms {
		if m != nil {
			next = append(next, m)
		}
	}
	return context.WithValue(ctx, monitorsKey{}, next)
}

// MonitorsFrom returns the monitors installed in ctx.
func MonitorsFrom(ctx context.Context) Monitors {
	ms, _ := ctx.Value(monitorsKey{}).(Monitors)
	return ms
}

// WithLogger returns a context carrying l. The core logs execution start,
// finish and reporting problems through it.
func WithLogger(ctx context.Context, l logging.Logger) context.Context {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFrom returns the logger carried by ctx, or a NoOpLogger. It never
// returns nil.
func LoggerFrom(ctx context.Context) logging.Logger {
	if l, ok := ctx.Value(loggerKey{}).(logging.Logger); ok {
		return l
	}
	return logging.NoOpLogger{}
}
