package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hupe1980/cmdkit/command"
	"github.com/hupe1980/cmdkit/core"
)

// builtinFuncs are the refs available to func nodes of CLI plans.
func builtinFuncs(out io.Writer) map[string]command.Func {
	var mu sync.Mutex
	return map[string]command.Func{
		// print writes the argument on its own line and passes it on.
		"print": func(_ context.Context, arg any) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintln(out, arg)
			return arg, nil
		},
		"now": func(context.Context, any) (any, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
		// wait blocks until the execution is aborted.
		"wait": func(ctx context.Context, _ any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

// seeded wraps a plan's root so that it receives arg when dispatched.
func seeded(name string, root core.Command, arg string) (core.Command, error) {
	seed, err := command.NewDelegate("arg", func(context.Context, any) (any, error) {
		if arg == "" {
			return nil, nil
		}
		return arg, nil
	})
	if err != nil {
		return nil, err
	}
	return command.NewSequential(name, seed, root)
}
