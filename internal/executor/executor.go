// SPDX-License-Identifier: MPL-2.0

// Package executor runs an execution plan against the backend adapters.
//
// A single coordinator goroutine owns all unit state. It dispatches units
// whose requirements have all succeeded, in plan order, to at most
// Concurrency workers at a time. A worker checks whether its unit is
// already satisfied, installs it if not, and verifies the install. A
// failure marks every transitive dependent skipped and leaves independent
// branches running, unless the failure policy is abort.
package executor

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/provisio/provisio/internal/backend"
	"github.com/provisio/provisio/internal/plan"
	"github.com/provisio/provisio/pkg/manifest"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultConcurrency is the number of units processed at once.
	DefaultConcurrency = 4
	// DefaultGracePeriod is how long in-flight units may finish after cancellation.
	DefaultGracePeriod = 10 * time.Second
)

type (
	// Checker evaluates a unit-declared satisfaction check.
	Checker interface {
		Satisfied(ctx context.Context, c *manifest.Check) (bool, error)
	}

	// Event reports a unit state change. Events for checking and installing
	// come from worker goroutines; terminal events come from the coordinator.
	Event struct {
		Unit   manifest.UnitName
		Kind   manifest.Kind
		Status Status
		Err    error
	}

	// Option configures an Executor.
	Option func(*Executor)

	// Executor runs plans. It holds no per-run state and may be reused.
	Executor struct {
		adapters    backend.Resolver
		checker     Checker
		concurrency int
		policy      FailurePolicy
		dryRun      bool
		grace       time.Duration
		runID       string
		output      io.Writer
		observer    func(Event)
		logger      *slog.Logger
		now         func() time.Time
	}

	outcome struct {
		index  int
		result UnitResult
	}
)

// WithConcurrency bounds the number of units processed at once. Values
// below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(e *Executor) { e.concurrency = max(n, 1) }
}

// WithFailurePolicy sets the failure policy. The default is FailureContinue.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithDryRun evaluates checks without installing anything.
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) { e.dryRun = dryRun }
}

// WithGracePeriod sets how long in-flight units may run after the run's
// context is cancelled before they are abandoned.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Executor) { e.grace = d }
}

// WithRunID sets the run id. By default each run gets a new UUID.
func WithRunID(id string) Option {
	return func(e *Executor) { e.runID = id }
}

// WithOutput sends installer output to w.
func WithOutput(w io.Writer) Option {
	return func(e *Executor) { e.output = w }
}

// WithObserver registers fn for unit state changes. fn may be called
// from several goroutines at once.
func WithObserver(fn func(Event)) Option {
	return func(e *Executor) { e.observer = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New returns an Executor that installs through adapters and evaluates
// unit-declared checks with checker.
func New(adapters backend.Resolver, checker Checker, opts ...Option) *Executor {
	e := &Executor{
		adapters:    adapters,
		checker:     checker,
		concurrency: DefaultConcurrency,
		policy:      FailureContinue,
		grace:       DefaultGracePeriod,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes p. It always returns a Result covering every planned unit;
// a cancelled ctx ends the run early with the unfinished units cancelled.
func (e *Executor) Run(ctx context.Context, p *plan.Plan) *Result {
	runID := e.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := e.logger.With("run_id", runID)
	steps := p.Steps()

	res := &Result{RunID: runID, DryRun: e.dryRun, Started: e.now(), Units: make([]UnitResult, len(steps))}
	defer func() { res.Duration = e.now().Sub(res.Started) }()

	index := make(map[manifest.UnitName]int, len(steps))
	for i, s := range steps {
		index[s.Unit.Name] = i
		res.Units[i] = UnitResult{Name: s.Unit.Name, Kind: s.Unit.Kind, Status: StatusPending}
	}
	remaining := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	var ready []int
	for i, s := range steps {
		for _, req := range s.Requires {
			if j, ok := index[req]; ok {
				remaining[i]++
				dependents[j] = append(dependents[j], i)
			}
		}
		if remaining[i] == 0 {
			ready = append(ready, i)
		}
	}

	logger.Info("starting run", "units", len(steps), "concurrency", e.concurrency, "dry_run", e.dryRun)

	// Workers outlive ctx by up to the grace period.
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()

	sem := semaphore.NewWeighted(int64(e.concurrency))
	done := make(chan outcome, len(steps))
	inFlight := 0
	stopping := false
	ctxDone := ctx.Done()
	var graceC <-chan time.Time

	finish := func(i int, r UnitResult) {
		res.Units[i] = r
		e.emit(Event{Unit: r.Name, Kind: r.Kind, Status: r.Status, Err: r.Err})
	}

	skipDependents := func(failed int) {
		type skip struct{ unit, cause int }
		var stack []skip
		for _, j := range dependents[failed] {
			stack = append(stack, skip{j, failed})
		}
		for len(stack) > 0 {
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if res.Units[s.unit].Status != StatusPending {
				continue
			}
			r := res.Units[s.unit]
			r.Status = StatusSkipped
			r.Err = &DependencyFailedError{Unit: r.Name, Dependency: res.Units[s.cause].Name}
			finish(s.unit, r)
			logger.Warn("skipping unit", "unit", r.Name, "failed_requirement", res.Units[s.cause].Name)
			for _, j := range dependents[s.unit] {
				stack = append(stack, skip{j, s.unit})
			}
		}
	}

dispatch:
	for {
		for !stopping && ctx.Err() == nil && len(ready) > 0 && sem.TryAcquire(1) {
			i := ready[0]
			ready = ready[1:]
			inFlight++
			res.Units[i].Status = StatusChecking
			u := steps[i].Unit
			go func() { done <- outcome{index: i, result: e.runUnit(workerCtx, logger, u)} }()
		}
		if inFlight == 0 {
			break
		}

		select {
		case o := <-done:
			inFlight--
			sem.Release(1)
			finish(o.index, o.result)
			if o.result.Status.IsSuccess() {
				for _, j := range dependents[o.index] {
					remaining[j]--
					if remaining[j] == 0 && res.Units[j].Status == StatusPending {
						ready = insertSorted(ready, j)
					}
				}
				continue
			}
			skipDependents(o.index)
			if e.policy == FailureAbort && !stopping {
				logger.Warn("aborting run after failure", "unit", o.result.Name)
				stopping = true
			}

		case <-ctxDone:
			ctxDone = nil
			stopping = true
			res.Cancelled = true
			logger.Warn("run cancelled, waiting for in-flight units", "in_flight", inFlight, "grace_period", e.grace)
			graceC = time.After(e.grace)

		case <-graceC:
			logger.Warn("grace period elapsed, abandoning in-flight units", "in_flight", inFlight)
			cancelWorkers()
			break dispatch
		}
	}

	if ctx.Err() != nil {
		res.Cancelled = true
	}
	for i, r := range res.Units {
		if !r.Status.IsTerminal() {
			r.Status = StatusCancelled
			if res.Cancelled {
				r.Err = context.Cause(ctx)
			}
			finish(i, r)
		}
	}

	logger.Info("run finished", "success", res.Success(), "installs", res.Installs())
	return res
}

// runUnit drives one unit through checking, installing, and verification.
func (e *Executor) runUnit(ctx context.Context, logger *slog.Logger, u *manifest.Unit) (r UnitResult) {
	start := e.now()
	r = UnitResult{Name: u.Name, Kind: u.Kind}
	defer func() { r.Duration = e.now().Sub(start) }()
	logger = logger.With("unit", u.Name, "kind", u.Kind)

	adapter, err := e.adapters.For(u.Kind)
	if err != nil {
		r.Status, r.Err = StatusFailed, &backend.InstallError{Unit: u.Name, Kind: u.Kind, Err: err}
		return r
	}
	req := backend.Request{Unit: u, Output: e.output}

	e.emit(Event{Unit: u.Name, Kind: u.Kind, Status: StatusChecking})
	satisfied, checkable, err := e.satisfied(ctx, adapter, req)
	if err != nil {
		logger.Warn("satisfaction check failed, treating unit as unsatisfied", "error", err)
	}
	if satisfied {
		logger.Debug("already satisfied")
		r.Status = StatusSatisfied
		return r
	}
	if e.dryRun {
		r.Status = StatusWouldInstall
		return r
	}

	e.emit(Event{Unit: u.Name, Kind: u.Kind, Status: StatusInstalling})
	logger.Info("installing")
	r.Installed = true
	if err := adapter.Install(ctx, req); err != nil {
		logger.Error("install failed", "error", err)
		r.Status, r.Err = StatusFailed, &backend.InstallError{Unit: u.Name, Kind: u.Kind, Err: err}
		return r
	}

	if checkable {
		ok, _, verr := e.satisfied(ctx, adapter, req)
		if !ok {
			logger.Error("post-install verification failed", "error", verr)
			r.Status, r.Err = StatusFailed, &PostInstallVerificationError{Unit: u.Name, Err: verr}
			return r
		}
	}
	r.Status = StatusDone
	return r
}

// satisfied applies check precedence: the unit's own check, then the
// adapter's, then none. checkable is false when neither exists.
func (e *Executor) satisfied(ctx context.Context, adapter backend.Adapter, req backend.Request) (ok, checkable bool, err error) {
	if !req.Unit.Check.IsEmpty() {
		ok, err = e.checker.Satisfied(ctx, req.Unit.Check)
		return ok, true, err
	}
	if sc, isChecker := adapter.(backend.SatisfactionChecker); isChecker {
		ok, err = sc.IsSatisfied(ctx, req)
		return ok, true, err
	}
	return false, false, nil
}

func (e *Executor) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}

func insertSorted(s []int, v int) []int {
	i, _ := slices.BinarySearch(s, v)
	return slices.Insert(s, i, v)
}
