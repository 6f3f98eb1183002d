// SPDX-License-Identifier: MPL-2.0

// Package plan turns a dependency graph into an execution plan.
package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/provisio/provisio/internal/graph"
	"github.com/provisio/provisio/pkg/manifest"
)

// ErrUnknownTarget is returned when --only names a unit that is not in the graph.
var ErrUnknownTarget = errors.New("unknown plan target")

type (
	// UnknownTargetError names a requested target that is not a planned unit.
	UnknownTargetError struct {
		Name manifest.UnitName
	}

	// Step is one planned unit with its resolved requirements.
	Step struct {
		Unit     *manifest.Unit
		Requires []manifest.UnitName
	}

	// Plan is an ordered sequence of units in which every unit follows
	// everything it transitively requires. It is immutable once built.
	Plan struct {
		steps []Step
		index map[manifest.UnitName]int
	}

	// Option configures New.
	Option func(*options)

	options struct {
		only []manifest.UnitName
	}
)

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("unit %q is not declared (or is a template)", e.Name)
}

// Unwrap returns ErrUnknownTarget for errors.Is() compatibility.
func (e *UnknownTargetError) Unwrap() error { return ErrUnknownTarget }

// Only restricts the plan to the named units and their transitive requirements.
func Only(names ...manifest.UnitName) Option {
	return func(o *options) { o.only = append(o.only, names...) }
}

// New builds the plan for g. Independent units keep declaration order.
func New(g *graph.Graph, opts ...Option) (*Plan, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	order, err := g.DAG().TopologicalSort()
	if err != nil {
		return nil, err
	}

	var keep map[string]bool
	if len(o.only) > 0 {
		keep = make(map[string]bool)
		var errs []error
		for _, name := range o.only {
			if !g.DAG().Has(string(name)) {
				errs = append(errs, &UnknownTargetError{Name: name})
				continue
			}
			for n := range g.DAG().Ancestors(string(name)) {
				keep[n] = true
			}
		}
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
	}

	p := &Plan{index: make(map[manifest.UnitName]int, len(order))}
	for _, n := range order {
		if keep != nil && !keep[n] {
			continue
		}
		name := manifest.UnitName(n)
		u, _ := g.Unit(name)
		p.index[name] = len(p.steps)
		p.steps = append(p.steps, Step{Unit: u, Requires: g.Requires(name)})
	}
	return p, nil
}

// Steps returns the planned steps in execution order.
func (p *Plan) Steps() []Step { return append([]Step(nil), p.steps...) }

// Len returns the number of planned units.
func (p *Plan) Len() int { return len(p.steps) }

// Position returns the index of name in the plan.
func (p *Plan) Position(name manifest.UnitName) (int, bool) {
	i, ok := p.index[name]
	return i, ok
}

// Names returns the planned unit names in order.
func (p *Plan) Names() []manifest.UnitName {
	out := make([]manifest.UnitName, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Unit.Name
	}
	return out
}

func (p *Plan) String() string {
	var b strings.Builder
	for i, s := range p.steps {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, s.Unit.Name, s.Unit.Kind)
		if len(s.Requires) > 0 {
			parts := make([]string, len(s.Requires))
			for j, r := range s.Requires {
				parts[j] = string(r)
			}
			fmt.Fprintf(&b, " <- %s", strings.Join(parts, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
