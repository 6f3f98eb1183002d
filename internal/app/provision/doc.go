// SPDX-License-Identifier: MPL-2.0

// Package provision wires the engine stages together for the CLI: manifest
// expansion and loading, capability registration, graph construction,
// planning, and execution. Structural failures come back as
// issue.ActionableError values naming the stage that failed.
package provision
