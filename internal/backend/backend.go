// SPDX-License-Identifier: MPL-2.0

// Package backend contains the installer adapters, one per unit kind.
//
// An adapter installs a unit and may report whether the unit is already
// satisfied when the unit declares no check of its own. Adapters are
// stateless; the executor calls them concurrently for different units.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/provisio/provisio/pkg/manifest"
)

var (
	// ErrInstall is the sentinel error wrapped by every InstallError.
	ErrInstall = errors.New("install failed")
	// ErrNoAdapter is returned when no adapter is registered for a kind.
	ErrNoAdapter = errors.New("no adapter for unit kind")
)

type (
	// Request carries the unit to act on.
	Request struct {
		Unit *manifest.Unit
		// Output receives installer stdout and stderr when set.
		Output io.Writer
	}

	// Adapter installs units of one kind.
	Adapter interface {
		Kind() manifest.Kind
		Install(ctx context.Context, req Request) error
	}

	// SatisfactionChecker is implemented by adapters that can tell whether a
	// unit is already installed without a unit-declared check.
	SatisfactionChecker interface {
		IsSatisfied(ctx context.Context, req Request) (bool, error)
	}

	// Resolver returns the adapter for a kind.
	Resolver interface {
		For(kind manifest.Kind) (Adapter, error)
	}

	// InstallError is an adapter-reported failure.
	InstallError struct {
		Unit manifest.UnitName
		Kind manifest.Kind
		Err  error
	}

	// CommandError reports an installer command that exited non-zero.
	CommandError struct {
		Command  []string
		ExitCode int
		Stderr   string
	}

	// Set is the closed set of adapters, keyed by kind.
	Set struct {
		adapters map[manifest.Kind]Adapter
	}

	// Option configures the adapters built by NewSet.
	Option func(*deps)

	deps struct {
		runner Runner
		logger *slog.Logger
		home   func() (string, error)
	}
)

func (e *InstallError) Error() string {
	return fmt.Sprintf("installing %s (%s): %v", e.Unit, e.Kind, e.Err)
}

// Unwrap exposes both ErrInstall and the underlying cause.
func (e *InstallError) Unwrap() []error { return []error{ErrInstall, e.Err} }

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", strings.Join(e.Command, " "), e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// WithRunner sets the command runner. The default is ExecRunner.
func WithRunner(r Runner) Option {
	return func(d *deps) { d.runner = r }
}

// WithLogger sets the logger adapters use for command debug output.
func WithLogger(l *slog.Logger) Option {
	return func(d *deps) { d.logger = l }
}

// WithHome replaces the home directory lookup used to expand "~/" paths.
func WithHome(fn func() (string, error)) Option {
	return func(d *deps) { d.home = fn }
}

// NewSet builds one adapter per kind from cfg.
func NewSet(cfg Config, opts ...Option) *Set {
	d := deps{runner: ExecRunner{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&d)
	}
	return NewSetOf(
		newPackageAdapter(manifest.KindSystemPackage, cfg, d),
		newPackageAdapter(manifest.KindBinaryCask, cfg, d),
		newPackageAdapter(manifest.KindLanguagePackage, cfg, d),
		&vcsAdapter{git: cfg.Git, deps: d},
		&scriptAdapter{defaultShell: cfg.Shell, deps: d},
		metaAdapter{},
	)
}

// NewSetOf builds a Set from explicit adapters. A later adapter for the
// same kind replaces an earlier one.
func NewSetOf(adapters ...Adapter) *Set {
	s := &Set{adapters: make(map[manifest.Kind]Adapter, len(adapters))}
	for _, a := range adapters {
		s.adapters[a.Kind()] = a
	}
	return s
}

// For returns the adapter for kind.
func (s *Set) For(kind manifest.Kind) (Adapter, error) {
	a, ok := s.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, kind)
	}
	return a, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

type metaAdapter struct{}

func (metaAdapter) Kind() manifest.Kind { return manifest.KindMeta }

// Install is a no-op: a meta unit is complete once its requirements are.
func (metaAdapter) Install(context.Context, Request) error { return nil }

func (metaAdapter) IsSatisfied(context.Context, Request) (bool, error) { return true, nil }
