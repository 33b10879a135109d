// Package plan reads declarative command trees from YAML.
//
// A plan names a root node; every node has a type and, depending on it,
// children, a single child or settings:
//
//	name: nightly
//	root:
//	  type: sequence
//	  children:
//	    - type: echo
//	      value: hello
//	    - type: retry
//	      attempts: 3
//	      delay: 50ms
//	      child:
//	        type: func
//	        ref: fetch
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPlan is wrapped by every parse and build error.
var ErrInvalidPlan = errors.New("invalid plan")

// Node types.
const (
	TypeSequence = "sequence"
	TypeParallel = "parallel"
	TypePause    = "pause"
	TypeEcho     = "echo"
	TypeFail     = "fail"
	TypeFunc     = "func"
	TypeRetry    = "retry"
	TypeTimeout  = "timeout"
	TypePeriodic = "periodic"
	TypeFinally  = "finally"
)

// Plan is a named command tree.
type Plan struct {
	Name string `yaml:"name"`
	Root *Node  `yaml:"root"`
}

// Node describes one command. Fields not used by a type must be empty.
type Node struct {
	Type     string  `yaml:"type"`
	Name     string  `yaml:"name"`
	Children []*Node `yaml:"children"`
	Child    *Node   `yaml:"child"`
	Cleanup  *Node   `yaml:"cleanup"`

	// echo
	Value any `yaml:"value"`
	// fail
	Message string `yaml:"message"`
	// func
	Ref string `yaml:"ref"`

	// pause
	Duration Duration `yaml:"duration"`
	// timeout
	Limit Duration `yaml:"limit"`

	// retry
	Attempts    int      `yaml:"attempts"`
	Delay       Duration `yaml:"delay"`
	MaxDelay    Duration `yaml:"max_delay"`
	Exponential bool     `yaml:"exponential"`

	// parallel
	AggregateErrors  bool `yaml:"aggregate_errors"`
	AbortUponFailure bool `yaml:"abort_upon_failure"`

	// periodic
	Interval      Duration `yaml:"interval"`
	Count         int      `yaml:"count"`
	PauseBefore   bool     `yaml:"pause_before"`
	StopOnFailure bool     `yaml:"stop_on_failure"`
}

// Duration is a time.Duration written as a Go duration string ("1m30s").
type Duration time.Duration

// UnmarshalYAML parses scalar duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if value.Value == "0" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Parse decodes a single YAML plan document. Unknown fields are rejected.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidPlan)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads and parses the plan file at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks the tree shape without building it.
func (p *Plan) Validate() error {
	if p.Root == nil {
		return fmt.Errorf("%w: missing root", ErrInvalidPlan)
	}
	return p.Root.validate("root")
}

func (n *Node) validate(path string) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidPlan, path, fmt.Sprintf(format, args...))
	}
	wantChild := false
	switch n.Type {
	case TypeSequence, TypeParallel:
		if n.Child != nil {
			return invalid("%s takes children, not child", n.Type)
		}
	case TypePause:
		if n.Duration < 0 {
			return invalid("negative duration")
		}
	case TypeEcho:
	case TypeFail:
		if n.Message == "" {
			return invalid("fail needs a message")
		}
	case TypeFunc:
		if n.Ref == "" {
			return invalid("func needs a ref")
		}
	case TypeRetry:
		wantChild = true
		if n.Attempts < 1 {
			return invalid("attempts must be positive")
		}
	case TypeTimeout:
		wantChild = true
		if n.Limit <= 0 {
			return invalid("limit must be positive")
		}
	case TypePeriodic:
		wantChild = true
		if n.Interval < 0 || n.Count < 0 {
			return invalid("interval and count must not be negative")
		}
	case TypeFinally:
		wantChild = true
		if n.Cleanup == nil {
			return invalid("finally needs a cleanup")
		}
	case "":
		return invalid("missing type")
	default:
		return invalid("unknown type %q", n.Type)
	}

	if wantChild && n.Child == nil {
		return invalid("%s needs a child", n.Type)
	}
	if !wantChild && n.Child != nil {
		return invalid("%s takes no child", n.Type)
	}
	if len(n.Children) > 0 && n.Type != TypeSequence && n.Type != TypeParallel {
		return invalid("%s takes no children", n.Type)
	}
	if n.Cleanup != nil && n.Type != TypeFinally {
		return invalid("%s takes no cleanup", n.Type)
	}

	for i, c := range n.Children {
		if c == nil {
			return invalid("children[%d] is empty", i)
		}
		if err := c.validate(fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
			return err
		}
	}
	if n.Child != nil {
		if err := n.Child.validate(path + ".child"); err != nil {
			return err
		}
	}
	if n.Cleanup != nil {
		if err := n.Cleanup.validate(path + ".cleanup"); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) name() string {
	if n.Name != "" {
		return n.Name
	}
	return n.Type
}
