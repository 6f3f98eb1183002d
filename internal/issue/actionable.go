// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"fmt"
	"strings"
)

type (
	// ActionableError is an error with enough context to tell the user what
	// to do next.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("load manifests").
	//		WithResource("devenv/base.cue").
	//		WithSuggestion("Run 'provisio validate' for the full report").
	//		Wrap(cause).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase ("load manifests", "build dependency graph").
		Operation string
		// Resource is the file or unit involved, if any.
		Resource string
		// Suggestions are short remediation hints.
		Suggestions []string
		// Issue links the error to a catalog entry. Zero means Classify decides.
		Issue Id
		Cause error
	}

	// ErrorContext builds an ActionableError incrementally.
	ErrorContext struct {
		operation   string
		resource    string
		suggestions []string
		issue       Id
		cause       error
	}
)

// NewErrorContext creates a new ErrorContext builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// WrapWithOperation wraps err with an operation and the suggestions of the
// catalog entry err classifies as. It returns nil for a nil err.
func WrapWithOperation(err error, operation string) *ActionableError {
	if err == nil {
		return nil
	}
	id := Classify(err)
	return &ActionableError{
		Operation:   operation,
		Suggestions: Get(id).Suggestions(),
		Issue:       id,
		Cause:       err,
	}
}

func (e *ActionableError) Error() string {
	var msg strings.Builder
	msg.WriteString("failed to ")
	msg.WriteString(e.Operation)
	if e.Resource != "" {
		msg.WriteString(": ")
		msg.WriteString(e.Resource)
	}
	if e.Cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Cause.Error())
	}
	return msg.String()
}

func (e *ActionableError) Unwrap() error { return e.Cause }

// IssueID returns the catalog entry for e, classifying the cause when no
// entry was set explicitly.
func (e *ActionableError) IssueID() Id {
	if e.Issue != 0 {
		return e.Issue
	}
	return Classify(e.Cause)
}

// Format renders e for the terminal. Suggestions are listed as bullets; in
// verbose mode the full error tree follows, one line per wrapped error.
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder
	msg.WriteString(e.Error())

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n")
		for _, s := range e.Suggestions {
			msg.WriteString("\n  • ")
			msg.WriteString(s)
		}
	}

	if verbose && e.Cause != nil {
		msg.WriteString("\n\nError chain:")
		n := 0
		walkChain(e.Cause, 0, func(depth int, err error) {
			n++
			fmt.Fprintf(&msg, "\n%s%d. %s", strings.Repeat("  ", depth+1), n, err.Error())
		})
	}
	return msg.String()
}

// walkChain visits err and everything it wraps, descending into joined
// errors.
func walkChain(err error, depth int, visit func(int, error)) {
	for err != nil {
		visit(depth, err)
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walkChain(inner, depth+1, visit)
			}
			return
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return
		}
	}
}

// HasSuggestions reports whether e carries any remediation hints.
func (e *ActionableError) HasSuggestions() bool { return len(e.Suggestions) > 0 }

// WithOperation sets the operation being performed.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.operation = op
	return c
}

// WithResource sets the file or unit involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.resource = res
	return c
}

// WithSuggestion appends a remediation hint.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.suggestions = append(c.suggestions, sug)
	return c
}

// WithIssue links the error to a catalog entry.
func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.issue = id
	return c
}

// Wrap sets the underlying cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.cause = err
	return c
}

// Build returns the ActionableError, or nil when no operation was set.
func (c *ErrorContext) Build() *ActionableError {
	if c.operation == "" {
		return nil
	}
	return &ActionableError{
		Operation:   c.operation,
		Resource:    c.resource,
		Suggestions: c.suggestions,
		Issue:       c.issue,
		Cause:       c.cause,
	}
}

// BuildError is Build returning the error interface, so a missing operation
// yields an untyped nil.
func (c *ErrorContext) BuildError() error {
	ae := c.Build()
	if ae == nil {
		return nil
	}
	return ae
}
