// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/provisio/provisio/internal/app/provision"
	"github.com/provisio/provisio/internal/executor"
	"github.com/provisio/provisio/internal/metrics"
	"github.com/provisio/provisio/internal/report"
	"github.com/provisio/provisio/pkg/manifest"
	"github.com/provisio/provisio/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type (
	// selectionFlags pick the manifests and the plan targets.
	selectionFlags struct {
		manifests []string
		only      []string
	}

	runFlagValues struct {
		selectionFlags
		dryRun            bool
		concurrency       int
		abortOnFailure    bool
		continueOnFailure bool
		metricsFile       string
		output            string
	}
)

func (f *selectionFlags) register(fs *pflag.FlagSet) {
	fs.StringArrayVarP(&f.manifests, "manifest", "m", nil, "manifest path or doublestar pattern (repeatable, default from config)")
	fs.StringArrayVar(&f.only, "only", nil, "restrict the run to this unit and its requirements (repeatable)")
}

func (f *selectionFlags) targets() []manifest.UnitName {
	out := make([]manifest.UnitName, len(f.only))
	for i, name := range f.only {
		out[i] = manifest.UnitName(name)
	}
	return out
}

func (f *runFlagValues) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	f.selectionFlags.register(fs)
	fs.BoolVarP(&f.dryRun, "dry-run", "n", false, "evaluate checks and report what would be installed")
	fs.IntVarP(&f.concurrency, "concurrency", "j", 0, "maximum units installing at once (default from config)")
	fs.BoolVar(&f.abortOnFailure, "abort-on-failure", false, "stop scheduling units after the first failure")
	fs.BoolVar(&f.continueOnFailure, "continue-on-failure", false, "keep running independent units after a failure")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")
	fs.StringVarP(&f.output, "output", "o", outputTable, "result format: table or json")
	cmd.MarkFlagsMutuallyExclusive("abort-on-failure", "continue-on-failure")
}

func newRunCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &runFlagValues{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Install every unit whose check is not satisfied",
		Long: `Load the manifests, build the dependency graph and bring every unit to a
satisfied state, installing in dependency order with bounded concurrency.

Exit status is 0 when every unit is satisfied or installed, 1 when a unit
failed or the run was interrupted, and 2 when the manifests are invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.output != outputTable && flags.output != outputJSON {
				return &ExitError{Code: types.ExitConfigError, Err: fmt.Errorf("invalid --output %q (valid: table, json)", flags.output)}
			}
			s, err := app.open(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}
			return exitCode(s.run(cmd.Context(), flags))
		},
	}
	flags.register(cmd)
	return cmd
}

// request merges run flags over the configuration.
func (s *session) request(flags *runFlagValues) provision.Request {
	req := provision.Request{
		Manifests:      s.manifests(flags.manifests),
		Only:           flags.targets(),
		ConflictPolicy: s.cfg.CapabilityConflicts,
		DryRun:         flags.dryRun,
		Concurrency:    s.cfg.Concurrency,
		FailurePolicy:  s.cfg.FailurePolicy,
		GracePeriod:    s.cfg.GracePeriod,
	}
	if flags.concurrency > 0 {
		req.Concurrency = flags.concurrency
	}
	switch {
	case flags.abortOnFailure:
		req.FailurePolicy = executor.FailureAbort
	case flags.continueOnFailure:
		req.FailurePolicy = executor.FailureContinue
	}
	if s.verbose {
		req.Output = s.app.stderr
	}
	if flags.output == outputTable {
		req.Observer = progress(s.app.stderr)
	}
	return req
}

// run executes one provisioning pass and reports it. It returns the exit
// code of the pass.
func (s *session) run(ctx context.Context, flags *runFlagValues) types.ExitCode {
	rec := metrics.NewRecorder()
	_, res, err := s.service(rec).Run(ctx, s.request(flags))
	if err != nil {
		renderError(s.app.stderr, err, s.verbose)
		if errors.Is(err, context.Canceled) {
			return types.ExitUnitFailure
		}
		return types.ExitConfigError
	}

	if flags.output == outputJSON {
		if jerr := report.JSON(s.app.stdout, res); jerr != nil {
			s.logger.Error("writing JSON result", "error", jerr)
		}
	} else {
		rd := s.renderer()
		fmt.Fprintln(s.app.stdout, rd.Table(res))
		if failures := rd.Failures(res); failures != "" {
			fmt.Fprint(s.app.stdout, failures)
		}
		fmt.Fprintln(s.app.stdout, rd.Summary(res))
	}

	path := flags.metricsFile
	if path == "" {
		path = s.cfg.MetricsFile
	}
	if path != "" {
		if werr := rec.WriteFile(path); werr != nil {
			s.logger.Warn("writing metrics file", "path", path, "error", werr)
		} else {
			s.logger.Debug("metrics written", "path", path)
		}
	}
	return res.ExitCode()
}

// progress prints a line whenever a unit starts installing.
func progress(w io.Writer) func(executor.Event) {
	var mu sync.Mutex
	return func(ev executor.Event) {
		if ev.Status != executor.StatusInstalling {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%s installing %s (%s)\n", HighlightStyle.Render("→"), ev.Unit, ev.Kind)
	}
}
