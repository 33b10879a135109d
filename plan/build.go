package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/cmdkit/command"
	"github.com/hupe1980/cmdkit/core"
)

// BuildOptions configures Build.
type BuildOptions struct {
	// Funcs resolves the ref of func nodes.
	Funcs map[string]command.Func
}

// Build turns the plan into a top-level command tree. On error every command
// built so far is disposed.
func Build(p *Plan, optFns ...func(o *BuildOptions)) (core.Command, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil plan", core.ErrInvalidArgument)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	opts := BuildOptions{Funcs: map[string]command.Func{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	b := &builder{funcs: opts.Funcs}
	return b.build(p.Root, "root")
}

type builder struct {
	funcs map[string]command.Func
}

func (b *builder) build(n *Node, path string) (core.Command, error) {
	var (
		cmd core.Command
		err error
	)
	switch n.Type {
	case TypeSequence:
		var children []core.Command
		if children, err = b.buildAll(n.Children, path); err != nil {
			return nil, err
		}
		if cmd, err = command.NewSequential(n.name(), children...); err != nil {
			disposeAll(children)
		}
	case TypeParallel:
		var children []core.Command
		if children, err = b.buildAll(n.Children, path); err != nil {
			return nil, err
		}
		var flags command.ParallelFlags
		if n.AggregateErrors {
			flags |= command.AggregateErrors
		}
		if n.AbortUponFailure {
			flags |= command.AbortUponFailure
		}
		if cmd, err = command.NewParallel(n.name(), flags, children...); err != nil {
			disposeAll(children)
		}
	case TypePause:
		cmd, err = command.NewPause(n.name(), n.Duration.Std())
	case TypeEcho:
		value := n.Value
		cmd, err = command.NewDelegate(n.name(), func(_ context.Context, arg any) (any, error) {
			if value == nil {
				return arg, nil
			}
			return value, nil
		})
	case TypeFail:
		failure := errors.New(n.Message)
		cmd, err = command.NewDelegate(n.name(), func(context.Context, any) (any, error) {
			return nil, failure
		})
	case TypeFunc:
		fn, ok := b.funcs[n.Ref]
		if !ok || fn == nil {
			return nil, fmt.Errorf("%w: %s: unknown func %q", ErrInvalidPlan, path, n.Ref)
		}
		cmd, err = command.NewDelegate(n.name(), fn)
	case TypeRetry:
		policy := command.FixedRetry(n.Attempts, n.Delay.Std())
		if n.Exponential {
			maxDelay := n.MaxDelay.Std()
			if maxDelay <= 0 {
				maxDelay = 30 * n.Delay.Std()
			}
			policy = command.ExponentialRetry(n.Attempts, n.Delay.Std(), maxDelay)
		}
		cmd, err = b.decorate(n, path, func(inner core.Command) (core.Command, error) {
			return command.NewRetryable(n.name(), inner, policy)
		})
	case TypeTimeout:
		cmd, err = b.decorate(n, path, func(inner core.Command) (core.Command, error) {
			return command.NewTimeLimited(n.name(), inner, n.Limit.Std())
		})
	case TypePeriodic:
		opts := []command.PeriodicOption{
			command.WithCount(n.Count),
			command.WithStopOnFailure(n.StopOnFailure),
		}
		if n.PauseBefore {
			opts = append(opts, command.WithPauseMode(command.PauseBefore))
		}
		cmd, err = b.decorate(n, path, func(inner core.Command) (core.Command, error) {
			return command.NewPeriodic(n.name(), inner, n.Interval.Std(), opts...)
		})
	case TypeFinally:
		var cleanup core.Command
		if cleanup, err = b.build(n.Cleanup, path+".cleanup"); err != nil {
			return nil, err
		}
		cmd, err = b.decorate(n, path, func(inner core.Command) (core.Command, error) {
			return command.NewFinally(n.name(), inner, cleanup)
		})
		if err != nil {
			cleanup.Dispose()
		}
	default:
		return nil, fmt.Errorf("%w: %s: unknown type %q", ErrInvalidPlan, path, n.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", path, err)
	}
	return cmd, nil
}

// decorate builds n.Child and wraps it, disposing the child when wrapping
// fails.
func (b *builder) decorate(n *Node, path string, wrap func(inner core.Command) (core.Command, error)) (core.Command, error) {
	inner, err := b.build(n.Child, path+".child")
	if err != nil {
		return nil, err
	}
	cmd, err := wrap(inner)
	if err != nil {
		inner.Dispose()
		return nil, err
	}
	return cmd, nil
}

func (b *builder) buildAll(nodes []*Node, path string) ([]core.Command, error) {
	cmds := make([]core.Command, 0, len(nodes))
	for i, c := range nodes {
		cmd, err := b.build(c, fmt.Sprintf("%s.children[%d]", path, i))
		if err != nil {
			disposeAll(cmds)
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

func disposeAll(cmds []core.Command) {
	for _, c := range cmds {
		c.Dispose()
	}
}
