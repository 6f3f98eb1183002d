// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

type (
	// Command is one installer process invocation.
	Command struct {
		Args []string
		Dir  string
		// Env is appended to the inherited environment.
		Env []string
		// Output receives a copy of stdout and stderr when set.
		Output io.Writer
	}

	// Result is a finished command. A non-zero ExitCode is not an error.
	Result struct {
		ExitCode int
		Stdout   string
		Stderr   string
	}

	// Runner executes commands. Run returns an error only when the command
	// could not be started or was interrupted.
	Runner interface {
		Run(ctx context.Context, cmd Command) (Result, error)
	}

	// ExecRunner runs commands as host processes.
	ExecRunner struct{}
)

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if len(c.Args) == 0 {
		return Result{}, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	var stdout, stderr bytes.Buffer
	if c.Output != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.Output)
		cmd.Stderr = io.MultiWriter(&stderr, c.Output)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, err
	}
	return res, nil
}

// run executes cmd and converts a non-zero exit into a CommandError.
func run(ctx context.Context, r Runner, cmd Command) (Result, error) {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, &CommandError{Command: cmd.Args, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}
