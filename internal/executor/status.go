// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/provisio/provisio/pkg/manifest"
	"github.com/provisio/provisio/pkg/types"
)

const (
	// StatusPending is a unit waiting for its requirements.
	StatusPending Status = "pending"
	// StatusChecking is a unit whose satisfaction check is running.
	StatusChecking Status = "checking"
	// StatusInstalling is a unit whose adapter install is running.
	StatusInstalling Status = "installing"
	// StatusSatisfied is a unit that was already satisfied; nothing was installed.
	StatusSatisfied Status = "satisfied"
	// StatusDone is a unit that was installed and verified.
	StatusDone Status = "done"
	// StatusFailed is a unit whose install or post-install verification failed.
	StatusFailed Status = "failed"
	// StatusSkipped is a unit not attempted because a requirement did not succeed.
	StatusSkipped Status = "skipped-dependency-failed"
	// StatusCancelled is a unit not completed because the run was cancelled or aborted.
	StatusCancelled Status = "cancelled"
	// StatusWouldInstall is a dry-run unit whose check did not pass.
	StatusWouldInstall Status = "would-install"

	// FailureContinue keeps running independent branches after a failure.
	FailureContinue FailurePolicy = "continue"
	// FailureAbort stops scheduling new units after the first failure.
	FailureAbort FailurePolicy = "abort"
)

var (
	// ErrPostInstallVerification is returned when a unit's check still fails after install.
	ErrPostInstallVerification = errors.New("post-install verification failed")
	// ErrDependencyFailed is the cause recorded on skipped units.
	ErrDependencyFailed = errors.New("dependency failed")
	// ErrInvalidFailurePolicy is returned for an unrecognized FailurePolicy.
	ErrInvalidFailurePolicy = errors.New("invalid failure policy")
)

type (
	// Status is the execution state of one unit.
	Status string

	// FailurePolicy selects what happens to the rest of the run after a unit fails.
	FailurePolicy string

	// PostInstallVerificationError reports an install that succeeded while
	// the unit's satisfaction check still does not pass.
	PostInstallVerificationError struct {
		Unit manifest.UnitName
		// Err is the check error, if the check itself failed to run.
		Err error
	}

	// DependencyFailedError names the requirement that caused a unit to be skipped.
	DependencyFailedError struct {
		Unit       manifest.UnitName
		Dependency manifest.UnitName
	}

	// UnitResult is the final state of one planned unit.
	UnitResult struct {
		Name   manifest.UnitName
		Kind   manifest.Kind
		Status Status
		Err    error
		// Installed reports whether the adapter's Install was invoked.
		Installed bool
		Duration  time.Duration
	}

	// Result is the outcome of one run. Units are in plan order.
	Result struct {
		RunID    string
		DryRun   bool
		Units    []UnitResult
		Started  time.Time
		Duration time.Duration
		// Cancelled reports whether the run's context was cancelled.
		Cancelled bool
	}
)

// IsTerminal reports whether s is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPending, StatusChecking, StatusInstalling:
		return false
	default:
		return true
	}
}

// IsSuccess reports whether dependents of a unit in state s may proceed.
func (s Status) IsSuccess() bool {
	return s == StatusSatisfied || s == StatusDone || s == StatusWouldInstall
}

// String returns the string representation of the Status.
func (s Status) String() string { return string(s) }

// IsValid returns whether the policy is recognized.
func (p FailurePolicy) IsValid() (bool, []error) {
	switch p {
	case FailureContinue, FailureAbort:
		return true, nil
	default:
		return false, []error{fmt.Errorf("%w: %q (valid: continue, abort)", ErrInvalidFailurePolicy, p)}
	}
}

func (e *PostInstallVerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s installed but its check could not run: %v", e.Unit, e.Err)
	}
	return fmt.Sprintf("%s installed but its check still fails", e.Unit)
}

// Unwrap returns ErrPostInstallVerification for errors.Is() compatibility.
func (e *PostInstallVerificationError) Unwrap() error { return ErrPostInstallVerification }

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("%s skipped: requirement %s did not succeed", e.Unit, e.Dependency)
}

// Unwrap returns ErrDependencyFailed for errors.Is() compatibility.
func (e *DependencyFailedError) Unwrap() error { return ErrDependencyFailed }

// Unit returns the result for name.
func (r *Result) Unit(name manifest.UnitName) (UnitResult, bool) {
	for _, u := range r.Units {
		if u.Name == name {
			return u, true
		}
	}
	return UnitResult{}, false
}

// Counts returns the number of units per status.
func (r *Result) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, u := range r.Units {
		counts[u.Status]++
	}
	return counts
}

// Installs returns the number of units whose Install was invoked.
func (r *Result) Installs() int {
	n := 0
	for _, u := range r.Units {
		if u.Installed {
			n++
		}
	}
	return n
}

// Success reports whether every unit ended satisfied, done, or would-install.
func (r *Result) Success() bool {
	for _, u := range r.Units {
		if !u.Status.IsSuccess() {
			return false
		}
	}
	return true
}

// ExitCode maps the result to the process exit code.
func (r *Result) ExitCode() types.ExitCode {
	if r.Success() {
		return types.ExitSuccess
	}
	return types.ExitUnitFailure
}
