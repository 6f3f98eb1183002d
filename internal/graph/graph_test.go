// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/provisio/provisio/internal/registry"
	"github.com/provisio/provisio/pkg/manifest"
)

func build(t *testing.T, yaml string) (*Graph, error) {
	t.Helper()
	units, err := manifest.Parse([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	store := manifest.NewStore()
	for _, u := range units {
		if aerr := store.Add(u); aerr != nil {
			t.Fatalf("Add() error = %v", aerr)
		}
	}
	reg, err := registry.FromStore(store)
	if err != nil {
		t.Fatalf("FromStore() error = %v", err)
	}
	return Build(store, reg)
}

func TestBuild_ResolvesNamesAndCapabilities(t *testing.T) {
	t.Parallel()
	g, err := build(t, `
units:
  - name: aws
    requires: [awscli, aws-vault.cask]
  - name: awscli.managed
    provides: [awscli]
  - name: aws-vault.cask
`)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []manifest.UnitName{"awscli.managed", "aws-vault.cask"}
	if got := g.Requires("aws"); !slices.Equal(got, want) {
		t.Errorf("Requires(aws) = %v, want %v", got, want)
	}
	if got := g.Dependents("awscli.managed"); !slices.Equal(got, []manifest.UnitName{"aws"}) {
		t.Errorf("Dependents(awscli.managed) = %v", got)
	}
	if g.Len() != 3 {
		t.Errorf("Len() = %d, want 3", g.Len())
	}
}

func TestBuild_Cycle(t *testing.T) {
	t.Parallel()
	_, err := build(t, `
units:
  - name: unit_a
    requires: [unit_b]
  - name: unit_b
    requires: [unit_a]
`)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("Build() error = %v, want ErrCycle", err)
	}
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if want := []string{"unit_a", "unit_b"}; !slices.Equal(cycle.Cycle, want) {
		t.Errorf("Cycle = %v, want %v", cycle.Cycle, want)
	}
}

func TestBuild_SelfRequirementIsCycle(t *testing.T) {
	t.Parallel()
	_, err := build(t, "units:\n  - name: loop\n    requires: [loop]\n")
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("Build() error = %v, want ErrCycle", err)
	}
}

func TestBuild_Unresolved(t *testing.T) {
	t.Parallel()
	_, err := build(t, `
units:
  - name: app
    requires: [kubectl, node.managed, helm]
  - name: node.managed
`)
	if !errors.Is(err, ErrUnresolvedReference) {
		t.Fatalf("Build() error = %v, want ErrUnresolvedReference", err)
	}
	for _, ref := range []string{`"kubectl"`, `"helm"`} {
		if !strings.Contains(err.Error(), ref) {
			t.Errorf("error does not name %s: %v", ref, err)
		}
	}
	var unresolved *UnresolvedReferenceError
	if !errors.As(err, &unresolved) || unresolved.Unit != "app" {
		t.Errorf("UnresolvedReferenceError = %+v", unresolved)
	}
}

func TestBuild_TemplateInstances(t *testing.T) {
	t.Parallel()
	g, err := build(t, `
units:
  - name: repository
    kind: vcs-checkout
    template: true
    requires: [git.managed]
    options: {branch: main}
  - name: git.managed
  - name: fxa
    requires:
      - {ref: repository, with: {url: "git@example.com:fxa.git", path: ~/src/fxa}}
  - name: subhub
    requires:
      - {ref: repository, with: {url: "git@example.com:subhub.git", path: ~/src/subhub}}
  - name: all
    requires:
      - fxa
      - {ref: repository, with: {path: ~/src/fxa, url: "git@example.com:fxa.git"}}
`)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if _, ok := g.Unit("repository"); ok {
		t.Error("template unit must not be a node")
	}
	// git, fxa, subhub, all + two distinct instances.
	if g.Len() != 6 {
		t.Errorf("Len() = %d, want 6", g.Len())
	}

	fxaRepo := manifest.UnitName("repository{path=~/src/fxa,url=git@example.com:fxa.git}")
	inst, ok := g.Unit(fxaRepo)
	if !ok {
		t.Fatalf("instance %s missing; nodes: %v", fxaRepo, g.Units())
	}
	if inst.Options["branch"] != "main" || inst.Origin != "repository" {
		t.Errorf("instance = %+v", inst)
	}
	if got := g.Requires(fxaRepo); !slices.Equal(got, []manifest.UnitName{"git.managed"}) {
		t.Errorf("instance requires = %v", got)
	}
	if got := g.Requires("all"); !slices.Equal(got, []manifest.UnitName{"fxa", fxaRepo}) {
		t.Errorf("Requires(all) = %v", got)
	}
}

func TestBuild_TemplateMisuse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantMsg string
		wantErr error
	}{
		{
			name: "template without options",
			yaml: `
units:
  - name: repository
    kind: vcs-checkout
    template: true
  - name: app
    requires: [repository]
`,
			wantMsg: "requires 'with' options",
			wantErr: ErrUnresolvedReference,
		},
		{
			name: "options on a concrete unit",
			yaml: `
units:
  - name: node.managed
  - name: app
    requires: [{ref: node.managed, with: {version: "20"}}]
`,
			wantMsg: "not a template",
			wantErr: ErrUnresolvedReference,
		},
		{
			name: "incomplete instance",
			yaml: `
units:
  - name: repository
    kind: vcs-checkout
    template: true
  - name: app
    requires: [{ref: repository, with: {path: ~/src/app}}]
`,
			wantErr: manifest.ErrMissingOption,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := build(t, tt.yaml)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Build() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}
