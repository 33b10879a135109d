package core

import (
	"fmt"
	"sync"
)

// registry guards the owner and children links of every node. It is taken
// before any node's mu, never after.
var registry sync.RWMutex

// Owner implements Command.
func (b Base) Owner() Command {
	registry.RLock()
	defer registry.RUnlock()
	if b.n.owner == nil {
		return nil
	}
	return b.n.owner.self
}

// Children implements Command.
func (b Base) Children() []Command {
	registry.RLock()
	defer registry.RUnlock()
	out := make([]Command, len(b.n.children))
	for i, c := range b.n.children {
		out[i] = c.self
	}
	return out
}

// TakeOwnership makes child owned by b. It fails when child already has an
// owner, when child is b or one of b's ancestors, or when either side is
// disposed. On failure nothing changes.
func (b Base) TakeOwnership(child Command) error {
	if child == nil {
		return fmt.Errorf("%w: nil child", ErrInvalidArgument)
	}
	c := child.treeNode()
	if c.isDisposed() {
		return fmt.Errorf("%w: %s", ErrDisposed, c.name)
	}

	registry.Lock()
	defer registry.Unlock()
	for a := b.n; a != nil; a = a.owner {
		if a == c {
			return fmt.Errorf("%w: %s cannot own %s", ErrCycle, b.n.name, c.name)
		}
	}
	if c.owner != nil {
		return fmt.Errorf("%w: %s is owned by %s", ErrAlreadyOwned, c.name, c.owner.name)
	}
	c.owner = b.n
	b.n.children = append(b.n.children, c)
	return nil
}

// RelinquishOwnership releases child, making it top-level again. A running
// child cannot be released.
func (b Base) RelinquishOwnership(child Command) error {
	if child == nil {
		return fmt.Errorf("%w: nil child", ErrInvalidArgument)
	}
	c := child.treeNode()

	registry.Lock()
	defer registry.Unlock()
	if c.owner != b.n {
		return fmt.Errorf("%w: %s", ErrNotOwned, c.name)
	}
	c.mu.Lock()
	running := c.state == StateRunning
	c.mu.Unlock()
	if running {
		return fmt.Errorf("%w: cannot release running command %s", ErrInvalidState, c.name)
	}
	c.owner = nil
	b.n.children = removeNode(b.n.children, c)
	return nil
}

// AbortChild aborts an owned child. Like Abort, it records a pending abort
// when the child is idle.
func (b Base) AbortChild(child Command) error {
	c, err := b.owned(child)
	if err != nil {
		return err
	}
	c.abort(false)
	return nil
}

// ResetChildAbort clears a pending abort of an owned, not running child so
// that its next execution starts normally.
func (b Base) ResetChildAbort(child Command) error {
	c, err := b.owned(child)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		return fmt.Errorf("%w: %s is running", ErrInvalidState, c.name)
	}
	c.abortRequested = false
	return nil
}

// IsTopLevel reports whether cmd has no owner.
func IsTopLevel(cmd Command) bool {
	return cmd.Owner() == nil
}

// RequireTopLevel returns ErrTopLevelRequired when cmd is owned.
func RequireTopLevel(cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidArgument)
	}
	if owner := cmd.Owner(); owner != nil {
		return fmt.Errorf("%w: %s is owned by %s", ErrTopLevelRequired, cmd.Name(), owner.Name())
	}
	return nil
}

func (b Base) owned(child Command) (*node, error) {
	if child == nil {
		return nil, fmt.Errorf("%w: nil child", ErrInvalidArgument)
	}
	c := child.treeNode()
	registry.RLock()
	defer registry.RUnlock()
	if c.owner != b.n {
		return nil, fmt.Errorf("%w: %s", ErrNotOwned, c.name)
	}
	return c, nil
}

func (n *node) childNodes() []*node {
	registry.RLock()
	defer registry.RUnlock()
	return append([]*node(nil), n.children...)
}

func (n *node) ownerRunID() string {
	registry.RLock()
	owner := n.owner
	registry.RUnlock()
	if owner == nil {
		return ""
	}
	return owner.runID()
}

// detachChildren clears every child link of n and returns the former
// children.
func (n *node) detachChildren() []*node {
	registry.Lock()
	defer registry.Unlock()
	children := n.children
	n.children = nil
	for _, c := range children {
		c.owner = nil
	}
	return children
}

func (n *node) isDisposed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disposed
}

func removeNode(nodes []*node, target *node) []*node {
	for i, n := range nodes {
		if n == target {
			return append(nodes[:i], nodes[i+1:]...)
		}
	}
	return nodes
}
