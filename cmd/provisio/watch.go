// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/provisio/provisio/internal/watch"
	"github.com/provisio/provisio/pkg/types"

	"github.com/spf13/cobra"
)

func newWatchCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &runFlagValues{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run once, then re-run whenever a manifest changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.output != outputTable && flags.output != outputJSON {
				return &ExitError{Code: types.ExitConfigError, Err: fmt.Errorf("invalid --output %q (valid: table, json)", flags.output)}
			}
			s, err := app.open(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}
			return s.watch(cmd.Context(), flags)
		},
	}
	flags.register(cmd)
	return cmd
}

// watch runs once and then on every debounced manifest change until ctx is
// cancelled. Failed passes are reported and do not stop the watcher.
func (s *session) watch(ctx context.Context, flags *runFlagValues) error {
	manifests := s.manifests(flags.manifests)
	out := s.app.stdout

	fmt.Fprintf(out, "%s Watch mode: initial run\n", HighlightStyle.Render("→"))
	if code := s.run(ctx, flags); code != types.ExitSuccess {
		fmt.Fprintf(s.app.stderr, "%s Initial run exited with status %d\n", WarningStyle.Render("!"), code)
	}

	w, err := watch.New(watch.Config{
		Manifests: manifests,
		Logger:    s.logger,
		OnChange: func(ctx context.Context, changed []string) error {
			fmt.Fprintf(out, "\n%s Detected %d change(s), re-running\n", HighlightStyle.Render("→"), len(changed))
			if code := s.run(ctx, flags); code != types.ExitSuccess {
				fmt.Fprintf(s.app.stderr, "%s Run exited with status %d\n", WarningStyle.Render("!"), code)
			}
			fmt.Fprintf(out, "\n%s Watching for changes (Ctrl+C to stop)...\n", HighlightStyle.Render("→"))
			return nil
		},
	})
	if err != nil {
		return &ExitError{Code: types.ExitConfigError, Err: fmt.Errorf("failed to start watcher: %w", err)}
	}
	fmt.Fprintf(out, "\n%s Watching for changes (Ctrl+C to stop)...\n", HighlightStyle.Render("→"))
	return w.Run(ctx)
}
