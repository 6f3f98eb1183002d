// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"slices"
	"strings"

	"github.com/provisio/provisio/internal/backend"
	"github.com/provisio/provisio/internal/dag"
	"github.com/provisio/provisio/internal/executor"
	"github.com/provisio/provisio/internal/graph"
	"github.com/provisio/provisio/internal/plan"
	"github.com/provisio/provisio/internal/registry"
	"github.com/provisio/provisio/pkg/manifest"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

// Id identifies a catalog entry.
type Id int

const (
	UnexpectedErrorId Id = iota + 1
	ManifestNotFoundId
	ManifestParseErrorId
	DuplicateUnitId
	CapabilityConflictId
	UnresolvedReferenceId
	DependencyCycleId
	UnknownTargetId
	InstallFailedId
	PostInstallVerificationId
	ConfigLoadFailedId
)

type (
	// MarkdownMsg is the body of a catalog entry.
	MarkdownMsg string

	// Issue is one class of problem with its guidance.
	Issue struct {
		id          Id
		title       string
		mdMsg       MarkdownMsg
		suggestions []string
	}
)

func (i *Issue) Id() Id { return i.id }

// Title is a short heading for the problem class.
func (i *Issue) Title() string { return i.title }

func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// Suggestions returns the one-line hints attached to ActionableErrors of
// this class.
func (i *Issue) Suggestions() []string { return slices.Clone(i.suggestions) }

// Render renders the entry as terminal Markdown with the given glamour style
// ("dark", "light", "notty", or a path to a style file).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString("# " + i.title + "\n")
	md.WriteString(string(i.mdMsg))
	if len(i.suggestions) > 0 {
		md.WriteString("\n\n## Things you can try\n")
		for _, s := range i.suggestions {
			md.WriteString("- " + s + "\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	catalog = map[Id]*Issue{
		UnexpectedErrorId: {
			id:    UnexpectedErrorId,
			title: "Something went wrong",
			mdMsg: `
provisio hit an error it has no specific guidance for.`,
			suggestions: []string{"Re-run with --verbose to see the full error chain"},
		},
		ManifestNotFoundId: {
			id:    ManifestNotFoundId,
			title: "No manifests found",
			mdMsg: `
None of the manifest paths or patterns matched a readable file. Patterns use
doublestar syntax, so ` + "`devenv/**/*.cue`" + ` matches every CUE file below
` + "`devenv`" + `. Only ` + "`.cue`, `.yaml`, `.yml`, `.toml` and `.json`" + ` files are read.`,
			suggestions: []string{
				"Pass manifests explicitly with --manifest",
				"Set 'manifests' in the config file",
				"Quote glob patterns so the shell does not expand them",
			},
		},
		ManifestParseErrorId: {
			id:    ManifestParseErrorId,
			title: "Invalid manifest",
			mdMsg: `
A manifest could not be read. Every file is checked, so all problems are
listed at once. Each unit needs a ` + "`name`" + `; kinds are
` + "`system-package`, `binary-cask`, `language-package`, `vcs-checkout`, `raw-script` and `meta`" + `,
and unknown fields or options are rejected.

~~~cue
units: [
  {name: "git.managed", check: {in_path: ["git"]}},
  {name: "dotfiles.repo", options: {url: "git@example.com:me/dotfiles.git", path: "~/src/dotfiles"}},
]
~~~`,
			suggestions: []string{"Run 'provisio validate' to list every problem with its file and unit"},
		},
		DuplicateUnitId: {
			id:    DuplicateUnitId,
			title: "Duplicate unit name",
			mdMsg: `
Two declarations use the same unit name. Names are global across all
manifests of a run; rename one or drop it from the manifest list.`,
			suggestions: []string{"Rename one of the units", "Check that a manifest is not listed twice under different paths"},
		},
		CapabilityConflictId: {
			id:    CapabilityConflictId,
			title: "Capability provided twice",
			mdMsg: `
Two units provide the same capability, so a requirement on it is ambiguous.
Mark the intended provider with ` + "`override: true`" + ` when the replacement is
deliberate, or set ` + "`capability_conflicts: \"first-wins\"`" + ` to keep the
first declaration.`,
			suggestions: []string{
				"Remove the capability from one unit's 'provides' list",
				"Set 'override: true' on the unit that should win",
			},
		},
		UnresolvedReferenceId: {
			id:    UnresolvedReferenceId,
			title: "Unresolved requirement",
			mdMsg: `
A requirement names neither a declared unit nor a provided capability, or
passes ` + "`with`" + ` options to a unit that is not a template.`,
			suggestions: []string{"Check the spelling of the requirement", "Add the manifest that declares it to the run"},
		},
		DependencyCycleId: {
			id:    DependencyCycleId,
			title: "Dependency cycle",
			mdMsg: `
The requirements form a loop, so no unit in it can be provisioned first.
The error lists the cycle in order.`,
			suggestions: []string{"Remove one requirement from the cycle"},
		},
		UnknownTargetId: {
			id:          UnknownTargetId,
			title:       "Unknown target",
			mdMsg:       "\nThe unit named with --only is not part of the loaded manifests.",
			suggestions: []string{"Run 'provisio plan' to list the units"},
		},
		InstallFailedId: {
			id:    InstallFailedId,
			title: "Install failed",
			mdMsg: `
An installer command exited with an error. Units that depend on it were
skipped; unrelated units still ran.`,
			suggestions: []string{"Re-run with --verbose to see installer output"},
		},
		PostInstallVerificationId: {
			id:    PostInstallVerificationId,
			title: "Install did not take effect",
			mdMsg: `
The installer reported success but the unit's check still fails. Usually the
check looks for the wrong binary name or path.`,
			suggestions: []string{"Compare the unit's 'check' clause with what the installer provides"},
		},
		ConfigLoadFailedId: {
			id:    ConfigLoadFailedId,
			title: "Invalid configuration",
			mdMsg: `
The configuration file could not be loaded or does not match the schema.`,
			suggestions: []string{"Run 'provisio config show' to see the effective configuration"},
		},
	}
)

// Classify maps err to the catalog entry that best explains it.
func Classify(err error) Id {
	var ae *ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		return ae.Issue
	}
	switch {
	case err == nil:
		return UnexpectedErrorId
	case errors.Is(err, manifest.ErrNoManifests):
		return ManifestNotFoundId
	case errors.Is(err, manifest.ErrDuplicateUnit):
		return DuplicateUnitId
	case errors.Is(err, manifest.ErrParse):
		return ManifestParseErrorId
	case errors.Is(err, registry.ErrCapabilityConflict):
		return CapabilityConflictId
	case errors.Is(err, graph.ErrUnresolvedReference), errors.Is(err, registry.ErrUnknownReference):
		return UnresolvedReferenceId
	case errors.Is(err, dag.ErrCycle):
		return DependencyCycleId
	case errors.Is(err, plan.ErrUnknownTarget):
		return UnknownTargetId
	case errors.Is(err, executor.ErrPostInstallVerification):
		return PostInstallVerificationId
	case errors.Is(err, backend.ErrInstall):
		return InstallFailedId
	}
	return UnexpectedErrorId
}

// Values returns every catalog entry ordered by id.
func Values() []*Issue {
	out := maps.Values(catalog)
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id - b.id) })
	return out
}

// Get returns the entry for id, or the generic entry when id is unknown.
func Get(id Id) *Issue {
	if i, ok := catalog[id]; ok {
		return i
	}
	return catalog[UnexpectedErrorId]
}
