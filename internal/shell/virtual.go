// SPDX-License-Identifier: MPL-2.0

// Package shell runs scripts in the embedded POSIX shell interpreter
// (mvdan.cc/sh). It is shared by script satisfaction checks and the
// raw-script backend so a script behaves the same in both places.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Script describes one interpreter invocation.
type Script struct {
	// Name is used in parse error positions.
	Name string
	Body string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env is appended to the inherited environment, overriding duplicates.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Parse checks script syntax without running it.
func Parse(name, body string) error {
	if _, err := syntax.NewParser().Parse(strings.NewReader(body), name); err != nil {
		return fmt.Errorf("script syntax error: %w", err)
	}
	return nil
}

// Run executes s and returns its exit status. A non-nil error means the
// script could not be run at all; a script that ran and exited non-zero
// returns its code with a nil error.
func Run(ctx context.Context, s Script) (int, error) {
	name := s.Name
	if name == "" {
		name = "script"
	}
	prog, err := syntax.NewParser().Parse(strings.NewReader(s.Body), name)
	if err != nil {
		return 1, fmt.Errorf("failed to parse script: %w", err)
	}

	stdout, stderr := s.Stdout, s.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(append(os.Environ(), s.Env...)...)),
		interp.StdIO(nil, stdout, stderr),
	}
	if s.Dir != "" {
		opts = append(opts, interp.Dir(s.Dir))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return 1, fmt.Errorf("failed to create interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return int(exitStatus), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 1, ctxErr
		}
		return 1, fmt.Errorf("script execution failed: %w", err)
	}
	return 0, nil
}
