// SPDX-License-Identifier: MPL-2.0

package plan

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/provisio/provisio/internal/graph"
	"github.com/provisio/provisio/internal/registry"
	"github.com/provisio/provisio/pkg/manifest"
)

const devManifest = `
units:
  - name: zsh.managed
  - name: web
    requires: [node, web-repo]
  - name: node.managed
    provides: [node]
  - name: web-repo
    requires: [git.managed]
  - name: git.managed
  - name: tmux.managed
`

func buildGraph(t *testing.T, yaml string) *graph.Graph {
	t.Helper()
	units, err := manifest.Parse([]byte(yaml), "plan.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	store := manifest.NewStore()
	for _, u := range units {
		if aerr := store.Add(u); aerr != nil {
			t.Fatal(aerr)
		}
	}
	reg, err := registry.FromStore(store)
	if err != nil {
		t.Fatal(err)
	}
	g, err := graph.Build(store, reg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return g
}

func TestNew_OrderRespectsRequirements(t *testing.T) {
	t.Parallel()
	g := buildGraph(t, devManifest)

	p, err := New(g)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	want := []manifest.UnitName{"zsh.managed", "node.managed", "git.managed", "web-repo", "web", "tmux.managed"}
	if got := p.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	for _, step := range p.Steps() {
		pos, _ := p.Position(step.Unit.Name)
		for _, req := range step.Requires {
			reqPos, ok := p.Position(req)
			if !ok || reqPos >= pos {
				t.Errorf("%s (at %d) planned before its requirement %s (at %d)", step.Unit.Name, pos, req, reqPos)
			}
		}
	}
}

func TestNew_Only(t *testing.T) {
	t.Parallel()
	g := buildGraph(t, devManifest)

	p, err := New(g, Only("web-repo", "zsh.managed"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	want := []manifest.UnitName{"zsh.managed", "git.managed", "web-repo"}
	if got := p.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestNew_OnlyUnknown(t *testing.T) {
	t.Parallel()
	g := buildGraph(t, devManifest)

	_, err := New(g, Only("kubectl"))
	if !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("New() error = %v, want ErrUnknownTarget", err)
	}
}

func TestPlan_String(t *testing.T) {
	t.Parallel()
	g := buildGraph(t, "units:\n  - name: git.managed\n  - name: repo\n    requires: [git.managed]\n")
	p, err := New(g)
	if err != nil {
		t.Fatal(err)
	}
	want := "1. git.managed (system-package)\n2. repo (meta) <- git.managed\n"
	if got := p.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// randomManifest declares n meta units in shuffled order. Unit names carry
// their rank; a unit only requires lower ranks, so the graph is acyclic.
func randomManifest(r *rand.Rand, n int) (yaml string, requires map[string][]string, declared []string) {
	requires = make(map[string][]string, n)
	for i := range n {
		name := fmt.Sprintf("u%02d", i)
		for j := range i {
			if r.IntN(4) == 0 {
				requires[name] = append(requires[name], fmt.Sprintf("u%02d", j))
			}
		}
	}

	var b strings.Builder
	b.WriteString("units:\n")
	for _, i := range r.Perm(n) {
		name := fmt.Sprintf("u%02d", i)
		declared = append(declared, name)
		fmt.Fprintf(&b, "  - name: %s\n", name)
		if reqs := requires[name]; len(reqs) > 0 {
			fmt.Fprintf(&b, "    requires: [%s]\n", strings.Join(reqs, ", "))
		}
	}
	return b.String(), requires, declared
}

// declarationOrderSort is Kahn's algorithm that always takes the earliest
// declared ready unit.
func declarationOrderSort(requires map[string][]string, declared []string) []manifest.UnitName {
	remaining := make(map[string]int, len(declared))
	dependents := make(map[string][]string)
	for _, name := range declared {
		remaining[name] = len(requires[name])
		for _, req := range requires[name] {
			dependents[req] = append(dependents[req], name)
		}
	}

	done := make(map[string]bool, len(declared))
	var out []manifest.UnitName
	for len(out) < len(declared) {
		for _, name := range declared {
			if done[name] || remaining[name] > 0 {
				continue
			}
			done[name] = true
			out = append(out, manifest.UnitName(name))
			for _, d := range dependents[name] {
				remaining[d]--
			}
			break
		}
	}
	return out
}

func TestNew_RandomGraphs(t *testing.T) {
	t.Parallel()

	for seed := range uint64(50) {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			t.Parallel()
			r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			yaml, requires, declared := randomManifest(r, 4+r.IntN(12))

			g := buildGraph(t, yaml)
			p, err := New(g)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if p.Len() != len(declared) {
				t.Fatalf("Len() = %d, want %d", p.Len(), len(declared))
			}

			for _, step := range p.Steps() {
				pos, _ := p.Position(step.Unit.Name)
				seen := map[manifest.UnitName]bool{}
				stack := slices.Clone(step.Requires)
				for len(stack) > 0 {
					req := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					if seen[req] {
						continue
					}
					seen[req] = true
					reqPos, ok := p.Position(req)
					if !ok || reqPos >= pos {
						t.Errorf("%s at %d runs before its requirement %s at %d", step.Unit.Name, pos, req, reqPos)
					}
					stack = append(stack, g.Requires(req)...)
				}
			}

			if got, want := p.Names(), declarationOrderSort(requires, declared); !slices.Equal(got, want) {
				t.Errorf("Names() = %v\nwant %v (declaration order among ready units)", got, want)
			}
		})
	}
}
