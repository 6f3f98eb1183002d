// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/provisio/provisio/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect provisio configuration",
		Long: `Inspect provisio configuration.

Configuration is read from the first of:
  - the --config flag
  - ~/.config/provisio/config.cue (Linux), ~/Library/Application Support/provisio/config.cue (macOS), %APPDATA%\provisio\config.cue (Windows)
  - ./provisio.cue

PROVISIO_* environment variables override file values, e.g. PROVISIO_CONCURRENCY=8.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}
			source := s.cfg.Source
			if source == "" {
				source = "(defaults)"
			}
			fmt.Fprintf(app.stdout, "// source: %s\n", source)
			fmt.Fprint(app.stdout, config.GenerateCUE(s.cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the user configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, filepath.Join(dir, config.ConfigFileName))
			return nil
		},
	})

	return cfgCmd
}
