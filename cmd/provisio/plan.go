// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/provisio/provisio/internal/app/provision"

	"github.com/spf13/cobra"
)

func newPlanCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &selectionFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the execution order without checking or installing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}
			prepared, err := s.service(nil).Prepare(cmd.Context(), provision.Request{
				Manifests:      s.manifests(flags.manifests),
				Only:           flags.targets(),
				ConflictPolicy: s.cfg.CapabilityConflicts,
			})
			if err != nil {
				return s.fail(err)
			}
			fmt.Fprintf(app.stdout, "%s %s\n", TitleStyle.Render("Execution plan"),
				SubtitleStyle.Render(fmt.Sprintf("(%d units)", prepared.Plan.Len())))
			fmt.Fprint(app.stdout, s.renderer().Plan(prepared.Plan))
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}
