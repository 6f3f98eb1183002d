// SPDX-License-Identifier: MPL-2.0

// Package types holds small value types shared between the engine and the CLI.
package types

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	// ExitSuccess means every unit ended satisfied or done.
	ExitSuccess ExitCode = 0
	// ExitUnitFailure means at least one unit failed, failed verification,
	// or was cancelled.
	ExitUnitFailure ExitCode = 1
	// ExitConfigError means the manifests could not be turned into a plan
	// (parse error, capability conflict, unresolved reference, cycle). No
	// unit was executed.
	ExitConfigError ExitCode = 2
)

// ErrInvalidExitCode is the sentinel error wrapped by InvalidExitCodeError.
var ErrInvalidExitCode = errors.New("invalid exit code")

type (
	// ExitCode represents a process exit status code.
	// Exit codes are in the range 0-255 on POSIX systems.
	// The zero value (0) means success.
	ExitCode int

	// InvalidExitCodeError is returned when an ExitCode is outside the
	// valid range (0-255).
	InvalidExitCodeError struct {
		Value ExitCode
	}
)

// Error implements the error interface.
func (e *InvalidExitCodeError) Error() string {
	return fmt.Sprintf("invalid exit code %d (must be in range 0-255)", e.Value)
}

// Unwrap returns ErrInvalidExitCode so callers can use errors.Is for programmatic detection.
func (e *InvalidExitCodeError) Unwrap() error { return ErrInvalidExitCode }

// Validate returns an error if the ExitCode is outside the valid range (0-255).
func (c ExitCode) Validate() error {
	if c < 0 || c > 255 {
		return &InvalidExitCodeError{Value: c}
	}
	return nil
}

// IsSuccess returns true if the exit code indicates a fully converged run.
func (c ExitCode) IsSuccess() bool { return c == ExitSuccess }

// String returns the decimal string representation of the ExitCode.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
