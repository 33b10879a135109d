package command

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/cmdkit/core"
)

// Func is the work performed by a Delegate.
type Func func(ctx context.Context, arg any) (any, error)

// Delegate is a leaf command running a function. The function should watch
// ctx: it is cancelled when the command is aborted, and returning ctx.Err()
// afterwards reports an abort.
type Delegate struct {
	core.Base
	fn Func
}

// NewDelegate returns a Delegate running fn.
func NewDelegate(name string, fn Func) (*Delegate, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil function for %s", core.ErrInvalidArgument, name)
	}
	d := &Delegate{fn: fn}
	d.Base = core.NewBase(name, d)
	return d, nil
}

// RunSync implements core.SyncRunner.
func (d *Delegate) RunSync(ctx context.Context, arg any) (any, error) {
	return d.fn(ctx, arg)
}

// Pause is a leaf command that waits for a fixed duration and echoes its
// argument. Aborting it ends the wait immediately.
type Pause struct {
	core.Base
	d time.Duration
}

// NewPause returns a Pause waiting d.
func NewPause(name string, d time.Duration) (*Pause, error) {
	if d < 0 {
		return nil, fmt.Errorf("%w: negative pause %s", core.ErrInvalidArgument, d)
	}
	p := &Pause{d: d}
	p.Base = core.NewBase(name, p)
	return p, nil
}

// Duration returns the configured wait.
func (p *Pause) Duration() time.Duration { return p.d }

// RunSync implements core.SyncRunner.
func (p *Pause) RunSync(ctx context.Context, arg any) (any, error) {
	if err := core.Sleep(ctx, p.d); err != nil {
		return nil, err
	}
	return arg, nil
}
