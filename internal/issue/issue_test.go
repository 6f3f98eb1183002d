// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/provisio/provisio/internal/backend"
	"github.com/provisio/provisio/internal/dag"
	"github.com/provisio/provisio/internal/graph"
	"github.com/provisio/provisio/internal/registry"
	"github.com/provisio/provisio/pkg/manifest"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Id
	}{
		{"nil", nil, UnexpectedErrorId},
		{"plain", errors.New("boom"), UnexpectedErrorId},
		{"no manifests", fmt.Errorf("expand: %w", manifest.ErrNoManifests), ManifestNotFoundId},
		{"parse", &manifest.ParseError{File: "a.yaml", Err: errors.New("bad")}, ManifestParseErrorId},
		{
			"duplicate before parse",
			&manifest.ParseError{File: "b.yaml", Err: &manifest.DuplicateUnitError{Name: "zsh.managed"}},
			DuplicateUnitId,
		},
		{
			"conflict",
			errors.Join(&registry.CapabilityConflictError{Capability: "zsh", Existing: "zsh.managed", Incoming: "awscli.managed"}),
			CapabilityConflictId,
		},
		{"unresolved", &graph.UnresolvedReferenceError{Unit: "web", Ref: "nodejs"}, UnresolvedReferenceId},
		{"cycle", &dag.CycleError{Cycle: []string{"a", "b"}}, DependencyCycleId},
		{"install", &backend.InstallError{Unit: "git.managed", Err: errors.New("exit 1")}, InstallFailedId},
		{
			"explicit issue wins",
			NewErrorContext().WithOperation("load config").WithIssue(ConfigLoadFailedId).Wrap(manifest.ErrParse).BuildError(),
			ConfigLoadFailedId,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValues_OrderedAndComplete(t *testing.T) {
	t.Parallel()
	values := Values()
	if len(values) != int(ConfigLoadFailedId) {
		t.Fatalf("len(Values()) = %d, want %d", len(values), ConfigLoadFailedId)
	}
	for i, v := range values {
		if v.Id() != Id(i+1) {
			t.Errorf("Values()[%d].Id() = %d", i, v.Id())
		}
		if v.Title() == "" || v.MarkdownMsg() == "" {
			t.Errorf("entry %d has empty title or message", v.Id())
		}
	}
}

func TestGet_UnknownFallsBack(t *testing.T) {
	t.Parallel()
	if got := Get(Id(999)); got.Id() != UnexpectedErrorId {
		t.Errorf("Get(999).Id() = %d", got.Id())
	}
}

func TestIssue_Render(t *testing.T) {
	t.Parallel()
	out, err := Get(CapabilityConflictId).Render("notty")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, want := range []string{"Capability provided twice", "override: true", "Things you can try"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q\n%s", want, out)
		}
	}
}

func TestIssue_SuggestionsCloned(t *testing.T) {
	t.Parallel()
	s := Get(ManifestNotFoundId).Suggestions()
	s[0] = "changed"
	if Get(ManifestNotFoundId).Suggestions()[0] == "changed" {
		t.Error("Suggestions() exposes the catalog slice")
	}
}
