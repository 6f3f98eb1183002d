// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/provisio/provisio/internal/backend"
	"github.com/provisio/provisio/internal/config"
	"github.com/provisio/provisio/pkg/types"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	// App holds the dependencies shared by every command. Tests replace the
	// runner to keep package managers out of the picture.
	App struct {
		Config config.Provider
		Runner backend.Runner
		stdout io.Writer
		stderr io.Writer
	}

	// Dependencies are the injection points of NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config config.Provider
		Runner backend.Runner
		Stdout io.Writer
		Stderr io.Writer
	}

	rootFlagValues struct {
		verbose    bool
		quiet      bool
		noColor    bool
		configPath string
		logFormat  string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Runner == nil {
		deps.Runner = backend.ExecRunner{}
	}
	return &App{Config: deps.Config, Runner: deps.Runner, stdout: deps.Stdout, stderr: deps.Stderr}
}

// NewRootCommand builds the command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}
	root := &cobra.Command{
		Use:   "provisio",
		Short: "Declarative developer-environment provisioning",
		Long: TitleStyle.Render("provisio") + SubtitleStyle.Render(" - declarative developer-environment provisioning") + `

provisio reads unit manifests (CUE, YAML or TOML), resolves requirements
and capabilities into a dependency graph, and installs whatever is missing
through Homebrew, language package managers, git and shell scripts.

` + SubtitleStyle.Render("Examples:") + `
  provisio run                         Provision everything in ./manifests
  provisio run --only 'mozilla subhub' Provision one unit and its requirements
  provisio run --dry-run               Show what would be installed
  provisio plan -m devenv/base.cue     Print the execution order
  provisio validate                    Check manifests without running anything
  provisio watch                       Re-run whenever a manifest changes`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	pf := root.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging and detailed error output")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "only log warnings and errors")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	pf.StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/provisio/config.cue, then ./provisio.cue)")
	pf.StringVar(&flags.logFormat, "log-format", "text", "log format: text, logfmt or json")

	root.AddCommand(
		newRunCommand(app, flags),
		newPlanCommand(app, flags),
		newValidateCommand(app, flags),
		newWatchCommand(app, flags),
		newConfigCommand(app, flags),
		newVersionCommand(app),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the provisio version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(app.stdout, "provisio "+getVersionString())
		},
	}
}

// Execute runs the CLI and exits the process. Interrupts cancel the command
// context, which the executor treats as a run cancellation.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(handleError),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(int(types.ExitUnitFailure))
	}
}

// handleError prints errors that were not already reported by the command.
func handleError(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}
