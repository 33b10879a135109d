package core

import (
	"fmt"
	"sync"
)

// Listener receives the terminal outcome of an asynchronous execution.
// Exactly one method is called per execution. When it is called the command
// is already terminal and its Done channel is closed.
type Listener interface {
	CommandSucceeded(result any)
	CommandAborted()
	CommandFailed(err error)
}

// ListenerFuncs adapts closures to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	OnSucceeded func(result any)
	OnAborted   func()
	OnFailed    func(err error)
}

func (l ListenerFuncs) CommandSucceeded(result any) {
	if l.OnSucceeded != nil {
		l.OnSucceeded(result)
	}
}

func (l ListenerFuncs) CommandAborted() {
	if l.OnAborted != nil {
		l.OnAborted()
	}
}

func (l ListenerFuncs) CommandFailed(err error) {
	if l.OnFailed != nil {
		l.OnFailed(err)
	}
}

// Completion is the reporting handle of one asynchronous execution, handed
// to AsyncRunner.RunAsync. Only the first report counts.
type Completion struct {
	n    *node
	ex   *execution
	once sync.Once
}

var _ Listener = (*Completion)(nil)

// Complete reports the execution outcome the way RunSync would return it.
// A second call returns ErrDoubleCompletion and changes nothing.
func (c *Completion) Complete(result any, err error) error {
	return c.report(result, err)
}

// CommandSucceeded reports success. Duplicate reports are logged and
// dropped.
func (c *Completion) CommandSucceeded(result any) { c.reportLogged(result, nil) }

// CommandAborted reports an abort.
func (c *Completion) CommandAborted() { c.reportLogged(nil, ErrAborted) }

// CommandFailed reports a failure. A nil error is treated as a programming
// error and recorded as an ErrInvalidArgument failure.
func (c *Completion) CommandFailed(err error) {
	if err == nil {
		err = fmt.Errorf("%w: CommandFailed called with nil error", ErrInvalidArgument)
	}
	c.reportLogged(nil, err)
}

func (c *Completion) report(result any, err error) error {
	reported := false
	c.once.Do(func() { reported = true })
	if !reported {
		return fmt.Errorf("%w: %s", ErrDoubleCompletion, c.n.name)
	}
	return c.n.complete(c.ex, result, err)
}

func (c *Completion) reportLogged(result any, err error) {
	if rerr := c.report(result, err); rerr != nil {
		c.ex.logger.Warn("dropped duplicate completion", "command", c.n.name, "run_id", c.ex.info.RunID, "error", rerr)
	}
}
