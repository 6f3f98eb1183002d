// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/provisio/provisio/internal/backend"
	"github.com/provisio/provisio/internal/executor"
	"github.com/provisio/provisio/internal/graph"
	"github.com/provisio/provisio/internal/issue"
	"github.com/provisio/provisio/internal/metrics"
	"github.com/provisio/provisio/internal/plan"
	"github.com/provisio/provisio/internal/registry"
	"github.com/provisio/provisio/pkg/manifest"
)

type (
	// Request describes one invocation.
	Request struct {
		// Manifests are literal paths or doublestar patterns, in merge order.
		Manifests []string
		// Only restricts the plan to these units and their requirements.
		Only           []manifest.UnitName
		ConflictPolicy registry.ConflictPolicy

		DryRun        bool
		Concurrency   int
		FailurePolicy executor.FailurePolicy
		GracePeriod   time.Duration
		// Output receives installer output. Nil discards it.
		Output   io.Writer
		Observer func(executor.Event)
	}

	// Prepared is everything known about a run before any unit executes.
	Prepared struct {
		Files    []string
		Store    *manifest.Store
		Registry *registry.Registry
		Graph    *graph.Graph
		Plan     *plan.Plan
		Warnings []manifest.Warning
	}

	// Option configures a Service.
	Option func(*Service)

	// Service runs requests against a fixed set of adapters.
	Service struct {
		adapters backend.Resolver
		checker  executor.Checker
		logger   *slog.Logger
		metrics  *metrics.Recorder
	}
)

// WithLogger sets the logger passed to every stage.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records every run in r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// NewService returns a Service installing through adapters and evaluating
// unit checks with checker.
func NewService(adapters backend.Resolver, checker executor.Checker, opts ...Option) *Service {
	s := &Service{adapters: adapters, checker: checker, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare loads and validates the manifests and computes the plan. It runs
// no adapter and no check.
func (s *Service) Prepare(ctx context.Context, req Request) (*Prepared, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := manifest.Expand(req.Manifests)
	if err != nil {
		return nil, stageError("find manifests", err)
	}
	s.logger.Debug("manifests resolved", "files", files)

	store, err := manifest.Load(files)
	if err != nil {
		return nil, stageError("load manifests", err)
	}

	policy := req.ConflictPolicy
	if policy == "" {
		policy = registry.PolicyError
	}
	if ok, errs := policy.IsValid(); !ok {
		return nil, stageError("register capabilities", errs[0])
	}
	reg, err := registry.FromStore(store, registry.WithPolicy(policy), registry.WithLogger(s.logger))
	if err != nil {
		return nil, stageError("register capabilities", err)
	}

	g, err := graph.Build(store, reg, graph.WithLogger(s.logger))
	if err != nil {
		return nil, stageError("build dependency graph", err)
	}

	p, err := plan.New(g, plan.Only(req.Only...))
	if err != nil {
		return nil, stageError("plan", err)
	}

	prepared := &Prepared{
		Files:    files,
		Store:    store,
		Registry: reg,
		Graph:    g,
		Plan:     p,
		Warnings: manifest.Lint(store),
	}
	for _, w := range prepared.Warnings {
		s.logger.Warn(w.Message, "unit", w.Unit, "source", w.Source)
	}
	return prepared, nil
}

// Run prepares req and executes the plan. A structural error returns a nil
// Result; otherwise the Result covers every planned unit.
func (s *Service) Run(ctx context.Context, req Request) (*Prepared, *executor.Result, error) {
	prepared, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if ok, errs := req.FailurePolicy.IsValid(); req.FailurePolicy != "" && !ok {
		return prepared, nil, stageError("configure executor", errs[0])
	}

	opts := []executor.Option{
		executor.WithDryRun(req.DryRun),
		executor.WithLogger(s.logger),
	}
	if req.Concurrency > 0 {
		opts = append(opts, executor.WithConcurrency(req.Concurrency))
	}
	if req.FailurePolicy != "" {
		opts = append(opts, executor.WithFailurePolicy(req.FailurePolicy))
	}
	if req.GracePeriod > 0 {
		opts = append(opts, executor.WithGracePeriod(req.GracePeriod))
	}
	if req.Output != nil {
		opts = append(opts, executor.WithOutput(req.Output))
	}
	if req.Observer != nil {
		opts = append(opts, executor.WithObserver(req.Observer))
	}

	res := executor.New(s.adapters, s.checker, opts...).Run(ctx, prepared.Plan)
	if s.metrics != nil {
		s.metrics.Observe(res)
	}
	return prepared, res, nil
}

// stageError wraps err with the failed stage and the catalog suggestions
// for its class.
func stageError(stage string, err error) error {
	return issue.WrapWithOperation(err, stage)
}
