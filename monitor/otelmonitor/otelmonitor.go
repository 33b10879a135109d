// Package otelmonitor traces command executions with OpenTelemetry. Each
// execution becomes one span; spans of owned commands are children of their
// owner's span, so a trace mirrors the ownership tree.
package otelmonitor

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/cmdkit/core"
)

// ScopeName is the instrumentation scope used when no tracer is configured.
const ScopeName = "github.com/hupe1980/cmdkit"

// Attribute keys set on every span.
const (
	AttrCommand = attribute.Key("cmdkit.command")
	AttrRunID   = attribute.Key("cmdkit.run_id")
	AttrState   = attribute.Key("cmdkit.state")
)

// Options configures a Monitor.
type Options struct {
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// Root is the parent context for spans of top-level commands.
	Root context.Context
	// Attributes are added to every span.
	Attributes []attribute.KeyValue
}

// Monitor implements core.Monitor on top of a trace.Tracer.
type Monitor struct {
	tracer trace.Tracer
	root   context.Context
	attrs  []attribute.KeyValue

	mu    sync.Mutex
	spans map[string]trace.Span
}

var _ core.Monitor = (*Monitor)(nil)

// New creates a tracing monitor.
func New(optFns ...func(o *Options)) *Monitor {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.Root == nil {
		opts.Root = context.Background()
	}
	return &Monitor{
		tracer: opts.TracerProvider.Tracer(ScopeName),
		root:   opts.Root,
		attrs:  opts.Attributes,
		spans:  map[string]trace.Span{},
	}
}

// OnStart opens the execution's span.
func (m *Monitor) OnStart(info core.Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent := m.root
	if p, ok := m.spans[info.ParentRunID]; ok && info.ParentRunID != "" {
		parent = trace.ContextWithSpan(parent, p)
	}
	attrs := append([]attribute.KeyValue{
		AttrCommand.String(info.Name),
		AttrRunID.String(info.RunID),
	}, m.attrs...)
	_, span := m.tracer.Start(parent, info.Name,
		trace.WithTimestamp(info.StartedAt),
		trace.WithAttributes(attrs...),
	)
	m.spans[info.RunID] = span
	return nil
}

// OnFinish ends the execution's span and records its outcome.
func (m *Monitor) OnFinish(info core.Info, outcome error) error {
	m.mu.Lock()
	span, ok := m.spans[info.RunID]
	delete(m.spans, info.RunID)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	span.SetAttributes(AttrState.String(info.State.String()))
	switch info.State {
	case core.StateSucceeded:
		span.SetStatus(codes.Ok, "")
	case core.StateFailed:
		if outcome != nil {
			span.RecordError(outcome)
			span.SetStatus(codes.Error, outcome.Error())
		} else {
			span.SetStatus(codes.Error, "failed")
		}
	case core.StateAborted:
		span.AddEvent("aborted")
	}
	span.End(trace.WithTimestamp(info.FinishedAt))
	return nil
}

// Close ends spans of executions that never finished.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, span := range m.spans {
		span.SetStatus(codes.Error, "monitor closed before the command finished")
		span.End()
		delete(m.spans, id)
	}
	return nil
}

// Open returns the number of spans not yet ended.
func (m *Monitor) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.spans)
}
