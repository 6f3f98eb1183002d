// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/provisio/provisio/internal/app/provision"
	"github.com/provisio/provisio/internal/backend"
	"github.com/provisio/provisio/internal/check"
	"github.com/provisio/provisio/internal/config"
	"github.com/provisio/provisio/internal/logging"
	"github.com/provisio/provisio/internal/metrics"
	"github.com/provisio/provisio/internal/report"
	"github.com/provisio/provisio/pkg/types"
)

// session is the per-invocation state derived from flags and config.
type session struct {
	app     *App
	cfg     *config.Config
	logger  *slog.Logger
	verbose bool
	color   []report.Option
}

// open loads the configuration and installs the process logger. Failures
// are reported and returned as an ExitError with the configuration exit
// code.
func (a *App) open(ctx context.Context, flags *rootFlagValues) (*session, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: flags.configPath})
	if err != nil {
		renderError(a.stderr, err, flags.verbose)
		return nil, &ExitError{Code: types.ExitConfigError}
	}

	s := &session{app: a, cfg: cfg, verbose: flags.verbose || cfg.UI.Verbose}
	noColor := flags.noColor || cfg.UI.Color == config.ColorNever
	switch {
	case noColor:
		s.color = []report.Option{report.WithColor(false)}
	case cfg.UI.Color == config.ColorAlways:
		s.color = []report.Option{report.WithColor(true)}
	}

	format := logging.Format(flags.logFormat)
	if ok, errs := format.IsValid(); !ok {
		return nil, &ExitError{Code: types.ExitConfigError, Err: errs[0]}
	}
	logger, err := logging.New(a.stderr, logging.Options{
		Verbose: s.verbose,
		Quiet:   flags.quiet,
		Format:  format,
		NoColor: noColor,
	})
	if err != nil {
		return nil, &ExitError{Code: types.ExitConfigError, Err: fmt.Errorf("logger: %w", err)}
	}
	slog.SetDefault(logger)
	s.logger = logger
	if cfg.Source != "" {
		logger.Debug("configuration loaded", "file", cfg.Source)
	}
	return s, nil
}

// service builds a provisioning service over the configured backends.
func (s *session) service(rec *metrics.Recorder) *provision.Service {
	adapters := backend.NewSet(s.cfg.Backends.Backend(),
		backend.WithRunner(s.app.Runner),
		backend.WithLogger(s.logger),
	)
	opts := []provision.Option{provision.WithLogger(s.logger)}
	if rec != nil {
		opts = append(opts, provision.WithMetrics(rec))
	}
	return provision.NewService(adapters, check.New(check.WithLogger(s.logger)), opts...)
}

// manifests returns the flag patterns, or the configured defaults.
func (s *session) manifests(flagged []string) []string {
	if len(flagged) > 0 {
		return flagged
	}
	return s.cfg.Manifests
}

func (s *session) renderer() *report.Renderer {
	return report.New(s.app.stdout, s.color...)
}

func (s *session) fail(err error) error {
	renderError(s.app.stderr, err, s.verbose)
	return &ExitError{Code: types.ExitConfigError}
}
