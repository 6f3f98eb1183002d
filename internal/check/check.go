// SPDX-License-Identifier: MPL-2.0

// Package check evaluates unit satisfaction predicates against the host.
//
// A check is side-effect free. Every clause that is set must hold:
//   - in_path: each executable is found on PATH
//   - path_exists: each file or directory exists ("~/" is the home directory)
//   - script: the snippet exits 0 in the embedded shell
package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/provisio/provisio/internal/shell"
	"github.com/provisio/provisio/pkg/fspath"
	"github.com/provisio/provisio/pkg/manifest"
)

type (
	// Evaluator runs checks. The zero value is not usable; use New.
	Evaluator struct {
		lookPath func(string) (string, error)
		home     fspath.HomeFunc
		env      []string
		logger   *slog.Logger
	}

	// Option configures an Evaluator.
	Option func(*Evaluator)
)

// WithLookPath replaces exec.LookPath for in_path clauses.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(e *Evaluator) { e.lookPath = fn }
}

// WithHome replaces the home directory lookup for path_exists clauses.
func WithHome(fn fspath.HomeFunc) Option {
	return func(e *Evaluator) { e.home = fn }
}

// WithEnv adds environment entries for script clauses.
func WithEnv(env ...string) Option {
	return func(e *Evaluator) { e.env = append(e.env, env...) }
}

// WithLogger sets the logger used for clause debug output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// New returns an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		lookPath: exec.LookPath,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Satisfied reports whether every clause of c holds. An empty check is
// never satisfied. Clauses are evaluated cheapest first and evaluation
// stops at the first clause that does not hold.
func (e *Evaluator) Satisfied(ctx context.Context, c *manifest.Check) (bool, error) {
	if c.IsEmpty() {
		return false, nil
	}

	for _, name := range c.InPath {
		if _, err := e.lookPath(name); err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				e.logger.Debug("executable not in PATH", "executable", name)
				return false, nil
			}
			return false, fmt.Errorf("looking up %q: %w", name, err)
		}
	}

	for _, path := range c.PathExists {
		ok, err := fspath.Exists(path, e.home)
		if err != nil {
			return false, err
		}
		if !ok {
			e.logger.Debug("path does not exist", "path", path)
			return false, nil
		}
	}

	if c.Script != "" {
		code, err := shell.Run(ctx, shell.Script{Name: "check", Body: c.Script, Env: e.env})
		if err != nil {
			return false, fmt.Errorf("check script: %w", err)
		}
		if code != 0 {
			e.logger.Debug("check script failed", "exit_code", code)
			return false, nil
		}
	}
	return true, nil
}
