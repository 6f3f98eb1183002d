// SPDX-License-Identifier: MPL-2.0

package dag

import (
	"errors"
	"slices"
	"testing"
)

func TestTopologicalSort_EmptyGraph(t *testing.T) {
	t.Parallel()
	g := New()
	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Errorf("expected nil, got %v", order)
	}
}

func TestTopologicalSort_LinearChain(t *testing.T) {
	t.Parallel()
	g := New()
	// C is inserted first but must run last.
	g.AddNode("C")
	g.AddEdge("B", "C")
	g.AddEdge("A", "B")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expected := []string{"A", "B", "C"}; !slices.Equal(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestTopologicalSort_InsertionOrderTieBreak(t *testing.T) {
	t.Parallel()
	g := New()
	for _, n := range []string{"zsh", "app", "node", "git", "tmux"} {
		g.AddNode(n)
	}
	// app needs node and git; nothing else is constrained.
	g.AddEdge("node", "app")
	g.AddEdge("git", "app")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expected := []string{"zsh", "node", "git", "app", "tmux"}; !slices.Equal(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestTopologicalSort_Diamond(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddEdge("A", "B")
	g.AddEdge("A", "C")
	g.AddEdge("B", "D")
	g.AddEdge("C", "D")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expected := []string{"A", "B", "C", "D"}; !slices.Equal(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestTopologicalSort_Cycles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		edges [][2]string
		nodes []string
		want  []string
	}{
		{
			name:  "two nodes",
			edges: [][2]string{{"unit_b", "unit_a"}, {"unit_a", "unit_b"}},
			nodes: []string{"unit_a", "unit_b"},
			want:  []string{"unit_a", "unit_b"},
		},
		{
			name:  "self loop",
			edges: [][2]string{{"A", "A"}},
			want:  []string{"A"},
		},
		{
			name:  "three nodes",
			edges: [][2]string{{"B", "A"}, {"C", "B"}, {"A", "C"}},
			nodes: []string{"A", "B", "C"},
			want:  []string{"A", "B", "C"},
		},
		{
			// head depends on the cycle but is not part of it.
			name:  "cycle behind a dependent",
			nodes: []string{"head", "x", "y"},
			edges: [][2]string{{"x", "head"}, {"y", "x"}, {"x", "y"}},
			want:  []string{"x", "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New()
			for _, n := range tt.nodes {
				g.AddNode(n)
			}
			for _, e := range tt.edges {
				g.AddEdge(e[0], e[1])
			}
			_, err := g.TopologicalSort()
			if !errors.Is(err, ErrCycle) {
				t.Fatalf("expected ErrCycle, got %v", err)
			}
			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("expected *CycleError, got %T: %v", err, err)
			}
			if !slices.Equal(cycleErr.Cycle, tt.want) {
				t.Errorf("cycle = %v, want %v", cycleErr.Cycle, tt.want)
			}
		})
	}
}

func TestAddEdge_Duplicate(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddEdge("A", "B")
	g.AddEdge("A", "B")

	if got := g.Predecessors("B"); !slices.Equal(got, []string{"A"}) {
		t.Errorf("Predecessors(B) = %v", got)
	}
	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(order, []string{"A", "B"}) {
		t.Errorf("expected [A, B], got %v", order)
	}
}

func TestAncestors(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddEdge("A", "B")
	g.AddEdge("B", "C")
	g.AddEdge("D", "C")
	g.AddNode("E")

	got := g.Ancestors("C")
	for _, n := range []string{"A", "B", "C", "D"} {
		if !got[n] {
			t.Errorf("Ancestors(C) missing %s", n)
		}
	}
	if got["E"] {
		t.Error("Ancestors(C) includes unrelated E")
	}
}

func TestCycleError_Message(t *testing.T) {
	t.Parallel()
	err := &CycleError{Cycle: []string{"A", "B", "C"}}
	expected := "dependency cycle detected: A -> B -> C -> A"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}
