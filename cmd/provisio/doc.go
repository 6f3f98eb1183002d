// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the provisio command tree.
//
// Every command loads the engine configuration, builds the process logger
// and delegates to internal/app/provision. Handlers never call os.Exit; a
// non-zero exit travels out of RunE as an *ExitError and Execute maps it to
// the process status.
package cmd
