// SPDX-License-Identifier: MPL-2.0

// Package graph resolves unit requirements into a dependency graph.
//
// Every non-template unit of the store becomes a node. Each requirement is
// resolved through the capability registry; a requirement carrying options
// instantiates the resolved template unit as an additional node. The
// resulting graph is acyclic or Build fails.
package graph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/provisio/provisio/internal/dag"
	"github.com/provisio/provisio/internal/registry"
	"github.com/provisio/provisio/pkg/manifest"
)

var (
	// ErrUnresolvedReference is returned when a requirement names no known unit or capability.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrCycle is returned when requirements form a cycle.
	ErrCycle = dag.ErrCycle
)

type (
	// CycleError lists the units of a requirement cycle; each unit requires
	// the next, and the last requires the first.
	CycleError = dag.CycleError

	// UnresolvedReferenceError names a requirement that could not be resolved.
	UnresolvedReferenceError struct {
		Unit   manifest.UnitName
		Ref    string
		Reason string
	}

	// Graph is the resolved dependency graph. It is immutable once built.
	Graph struct {
		dag   *dag.Graph
		units map[manifest.UnitName]*manifest.Unit
		// requires holds the resolved requirement targets per node, in
		// declaration order and without duplicates.
		requires map[manifest.UnitName][]manifest.UnitName
	}

	// Option configures Build.
	Option func(*builder)

	builder struct {
		logger *slog.Logger
	}
)

func (e *UnresolvedReferenceError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unit %q requires %q: %s", e.Unit, e.Ref, e.Reason)
	}
	return fmt.Sprintf("unit %q requires %q, which is neither a unit nor a capability", e.Unit, e.Ref)
}

// Unwrap returns ErrUnresolvedReference for errors.Is() compatibility.
func (e *UnresolvedReferenceError) Unwrap() error { return ErrUnresolvedReference }

// WithLogger sets the logger used for resolution debug output.
func WithLogger(l *slog.Logger) Option {
	return func(b *builder) { b.logger = l }
}

// Build resolves every requirement of every non-template unit in s through
// reg. All unresolved references are reported together; a cycle is reported
// as a *CycleError listing the units in requirement order.
func Build(s *manifest.Store, reg *registry.Registry, opts ...Option) (*Graph, error) {
	b := builder{logger: slog.Default()}
	for _, opt := range opts {
		opt(&b)
	}

	g := &Graph{
		dag:      dag.New(),
		units:    make(map[manifest.UnitName]*manifest.Unit),
		requires: make(map[manifest.UnitName][]manifest.UnitName),
	}

	var queue []*manifest.Unit
	for _, u := range s.Units() {
		if u.Template {
			continue
		}
		g.addNode(u)
		queue = append(queue, u)
	}

	var errs []error
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		for _, req := range u.Requires {
			target, err := reg.Resolve(req.Ref)
			if err != nil {
				errs = append(errs, &UnresolvedReferenceError{Unit: u.Name, Ref: req.Ref})
				continue
			}

			if len(req.With) > 0 {
				if !target.Template {
					errs = append(errs, &UnresolvedReferenceError{Unit: u.Name, Ref: req.Ref,
						Reason: fmt.Sprintf("options given but %q is not a template unit", target.Name)})
					continue
				}
				name := manifest.InstanceName(target.Name, req.With)
				if existing, ok := g.units[name]; ok {
					target = existing
				} else {
					inst, ierr := target.Instantiate(req.With)
					if ierr != nil {
						errs = append(errs, ierr)
						continue
					}
					b.logger.Debug("instantiated template", "template", target.Name, "instance", inst.Name, "by", u.Name)
					g.addNode(inst)
					queue = append(queue, inst)
					target = inst
				}
			} else if target.Template {
				errs = append(errs, &UnresolvedReferenceError{Unit: u.Name, Ref: req.Ref,
					Reason: "template unit requires 'with' options"})
				continue
			}

			b.logger.Debug("resolved requirement", "unit", u.Name, "ref", req.Ref, "target", target.Name)
			g.addEdge(u.Name, target.Name)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if _, err := g.dag.TopologicalSort(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) addNode(u *manifest.Unit) {
	g.units[u.Name] = u
	g.dag.AddNode(string(u.Name))
}

// addEdge records that unit requires target.
func (g *Graph) addEdge(unit, target manifest.UnitName) {
	for _, existing := range g.requires[unit] {
		if existing == target {
			return
		}
	}
	g.requires[unit] = append(g.requires[unit], target)
	g.dag.AddEdge(string(target), string(unit))
}

// Unit returns the node for name.
func (g *Graph) Unit(name manifest.UnitName) (*manifest.Unit, bool) {
	u, ok := g.units[name]
	return u, ok
}

// Units returns every node in insertion order: declared units first, in
// declaration order, followed by template instances in discovery order.
func (g *Graph) Units() []*manifest.Unit {
	names := g.dag.Nodes()
	out := make([]*manifest.Unit, len(names))
	for i, n := range names {
		out[i] = g.units[manifest.UnitName(n)]
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return g.dag.Len() }

// Requires returns the resolved requirements of name.
func (g *Graph) Requires(name manifest.UnitName) []manifest.UnitName {
	return append([]manifest.UnitName(nil), g.requires[name]...)
}

// Dependents returns the units that directly require name.
func (g *Graph) Dependents(name manifest.UnitName) []manifest.UnitName {
	succ := g.dag.Successors(string(name))
	out := make([]manifest.UnitName, len(succ))
	for i, s := range succ {
		out[i] = manifest.UnitName(s)
	}
	return out
}

// DAG returns the underlying ordering graph. Edges point from a requirement
// to the unit that requires it.
func (g *Graph) DAG() *dag.Graph { return g.dag }
