// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/provisio/provisio/internal/app/provision"
	"github.com/provisio/provisio/pkg/types"

	"github.com/spf13/cobra"
)

func newValidateCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var (
		manifests []string
		strict    bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check manifests for structural errors",
		Long: `Load, register and resolve every manifest, then lint the result.

Exit status is 2 on a parse error, duplicate unit, capability conflict,
unresolved reference or dependency cycle. Lint findings are warnings unless
--strict is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}
			prepared, err := s.service(nil).Prepare(cmd.Context(), provision.Request{
				Manifests:      s.manifests(manifests),
				ConflictPolicy: s.cfg.CapabilityConflicts,
			})
			if err != nil {
				return s.fail(err)
			}

			for _, w := range prepared.Warnings {
				fmt.Fprintf(app.stdout, "%s %s: %s %s\n", WarningStyle.Render("!"), w.Unit, w.Message,
					SubtitleStyle.Render("("+w.Source+")"))
			}
			fmt.Fprintf(app.stdout, "%s %d units in %d files, %d capabilities\n", SuccessStyle.Render("✓"),
				prepared.Store.Len(), len(prepared.Files), len(prepared.Registry.Capabilities()))
			if strict && len(prepared.Warnings) > 0 {
				return &ExitError{Code: types.ExitConfigError, Err: fmt.Errorf("%d lint warnings", len(prepared.Warnings))}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&manifests, "manifest", "m", nil, "manifest path or doublestar pattern (repeatable, default from config)")
	cmd.Flags().BoolVar(&strict, "strict", false, "treat lint warnings as errors")
	return cmd
}
