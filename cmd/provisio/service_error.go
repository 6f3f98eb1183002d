// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/provisio/provisio/internal/issue"
)

// renderError reports err on stderr. Actionable errors list their
// suggestions; in verbose mode the error chain and the catalog guidance for
// the error's class follow.
func renderError(stderr io.Writer, err error, verbose bool) {
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		fmt.Fprintln(stderr, ErrorStyle.Render("✗ ")+err.Error())
		return
	}
	fmt.Fprintln(stderr, ErrorStyle.Render("✗ ")+ae.Format(verbose))

	if !verbose {
		fmt.Fprintln(stderr, SubtitleStyle.Render("\nRun with --verbose for the full error chain and troubleshooting help."))
		return
	}
	id := ae.IssueID()
	rendered, renderErr := issue.Get(id).Render("dark")
	if renderErr != nil {
		slog.Warn("failed to render issue catalog entry", "issueID", id, "error", renderErr)
		return
	}
	fmt.Fprint(stderr, rendered)
}
