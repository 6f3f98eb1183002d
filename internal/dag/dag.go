// SPDX-License-Identifier: MPL-2.0

// Package dag provides an insertion-ordered directed graph with topological
// sorting and cycle path reporting. It is used by the graph builder to order
// units so that every unit follows everything it requires.
package dag

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCycle is the sentinel error wrapped by CycleError.
var ErrCycle = errors.New("dependency cycle")

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError struct {
		// Cycle lists the nodes of one cycle. Each node must run after the
		// next one, and the last after the first. The cycle starts at its
		// earliest-inserted node.
		Cycle []string
	}

	// Graph is a directed graph for topological sorting.
	// Nodes are identified by string keys. An edge from A to B means A must
	// complete before B starts.
	Graph struct {
		succ  map[string][]string
		pred  map[string][]string
		index map[string]int
		nodes []string
	}

	// readyQueue is a min-heap of insertion indexes.
	readyQueue []int
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(append(slices.Clone(e.Cycle), e.Cycle[0]), " -> "))
}

// Unwrap returns ErrCycle for errors.Is() compatibility.
func (e *CycleError) Unwrap() error { return ErrCycle }

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		succ:  make(map[string][]string),
		pred:  make(map[string][]string),
		index: make(map[string]int),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph) AddNode(name string) {
	if _, ok := g.index[name]; ok {
		return
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, name)
}

// AddEdge adds a directed edge from -> to, meaning "from" must run before "to".
// Both nodes are implicitly added if they don't exist. Repeated edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	if slices.Contains(g.succ[from], to) {
		return
	}
	g.succ[from] = append(g.succ[from], to)
	g.pred[to] = append(g.pred[to], from)
}

// Has reports whether name is a node.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []string { return slices.Clone(g.nodes) }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Successors returns the nodes that must run after name, in edge order.
func (g *Graph) Successors(name string) []string { return slices.Clone(g.succ[name]) }

// Predecessors returns the nodes that must run before name, in edge order.
func (g *Graph) Predecessors(name string) []string { return slices.Clone(g.pred[name]) }

// Ancestors returns name and every node that transitively runs before it.
func (g *Graph) Ancestors(name string) map[string]bool {
	seen := map[string]bool{}
	stack := []string{name}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.pred[n]...)
	}
	return seen
}

// TopologicalSort returns a valid execution order using Kahn's algorithm.
// Returns CycleError if the graph contains a cycle.
// Among nodes whose predecessors are all placed, the earliest-inserted node
// always comes next, so the order is as close to insertion order as the
// edges allow.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make([]int, len(g.nodes))
	for i, node := range g.nodes {
		inDegree[i] = len(g.pred[node])
	}

	ready := &readyQueue{}
	for i := range g.nodes {
		if inDegree[i] == 0 {
			*ready = append(*ready, i)
		}
	}
	heap.Init(ready)

	result := make([]string, 0, len(g.nodes))
	for ready.Len() > 0 {
		node := g.nodes[heap.Pop(ready).(int)]
		result = append(result, node)
		for _, next := range g.succ[node] {
			j := g.index[next]
			inDegree[j]--
			if inDegree[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, &CycleError{Cycle: g.findCycle(inDegree)}
	}
	return result, nil
}

// findCycle walks predecessor edges among the nodes Kahn's algorithm could
// not place until it revisits a node on the current path.
func (g *Graph) findCycle(inDegree []int) []string {
	const (
		unvisited = iota
		onPath
		finished
	)
	state := make([]int, len(g.nodes))
	var path []int

	var visit func(i int) []int
	visit = func(i int) []int {
		state[i] = onPath
		path = append(path, i)
		for _, p := range g.pred[g.nodes[i]] {
			j := g.index[p]
			if inDegree[j] == 0 {
				continue
			}
			switch state[j] {
			case onPath:
				return slices.Clone(path[slices.Index(path, j):])
			case unvisited:
				if c := visit(j); c != nil {
					return c
				}
			}
		}
		path = path[:len(path)-1]
		state[i] = finished
		return nil
	}

	for i := range g.nodes {
		if inDegree[i] == 0 || state[i] != unvisited {
			continue
		}
		if c := visit(i); c != nil {
			return g.names(rotateToMin(c))
		}
	}
	return nil
}

func rotateToMin(cycle []int) []int {
	start := slices.Index(cycle, slices.Min(cycle))
	return slices.Concat(cycle[start:], cycle[:start])
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = g.nodes[n]
	}
	return out
}

func (q readyQueue) Len() int           { return len(q) }
func (q readyQueue) Less(i, j int) bool { return q[i] < q[j] }
func (q readyQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(int)) }

func (q *readyQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	*q = old[:len(old)-1]
	return n
}
