// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrUnknownOption is returned when a unit carries an option key its kind does not accept.
	ErrUnknownOption = errors.New("unknown option")
	// ErrMissingOption is returned when a unit lacks an option its kind requires.
	ErrMissingOption = errors.New("missing required option")
	// ErrInvalidOption is returned when an option value is malformed.
	ErrInvalidOption = errors.New("invalid option value")

	// optionSchema lists the accepted option keys per kind. Keys marked true
	// are required on every non-template unit of that kind.
	optionSchema = map[Kind]map[string]bool{
		KindSystemPackage:   {"version": false, "tap": false},
		KindBinaryCask:      {"tap": false},
		KindLanguagePackage: {"version": false},
		KindVCSCheckout:     {"url": true, "path": true, "branch": false, "depth": false},
		KindRawScript:       {"shell": false, "workdir": false, "env_file": false},
		KindMeta:            {},
	}
)

type (
	// Options is the free-form configuration passed through to the backend.
	// Keys are validated against the unit's kind at load time.
	Options map[string]string

	// UnknownOptionError names an option key the kind does not accept.
	UnknownOptionError struct {
		Kind Kind
		Key  string
	}

	// MissingOptionError names a required option the unit does not set.
	MissingOptionError struct {
		Kind Kind
		Key  string
	}

	// InvalidOptionError describes a malformed option value.
	InvalidOptionError struct {
		Key    string
		Value  string
		Reason string
	}
)

func (e *UnknownOptionError) Error() string {
	allowed := slices.Sorted(maps.Keys(optionSchema[e.Kind]))
	if len(allowed) == 0 {
		return fmt.Sprintf("option %q is not accepted by kind %s (it takes no options)", e.Key, e.Kind)
	}
	return fmt.Sprintf("option %q is not accepted by kind %s (accepted: %s)", e.Key, e.Kind, strings.Join(allowed, ", "))
}

// Unwrap returns ErrUnknownOption for errors.Is() compatibility.
func (e *UnknownOptionError) Unwrap() error { return ErrUnknownOption }

func (e *MissingOptionError) Error() string {
	return fmt.Sprintf("kind %s requires option %q", e.Kind, e.Key)
}

// Unwrap returns ErrMissingOption for errors.Is() compatibility.
func (e *MissingOptionError) Unwrap() error { return ErrMissingOption }

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("option %s=%q: %s", e.Key, e.Value, e.Reason)
}

// Unwrap returns ErrInvalidOption for errors.Is() compatibility.
func (e *InvalidOptionError) Unwrap() error { return ErrInvalidOption }

// AllowedOptions returns the option keys accepted by kind, sorted.
func AllowedOptions(kind Kind) []string {
	return slices.Sorted(maps.Keys(optionSchema[kind]))
}

// Merge returns a copy of o with every key of over applied on top.
func (o Options) Merge(over Options) Options {
	out := make(Options, len(o)+len(over))
	maps.Copy(out, o)
	maps.Copy(out, over)
	return out
}

// validateKeys rejects keys the kind does not accept. Keys are checked in
// sorted order so the reported error is stable.
func (o Options) validateKeys(kind Kind) error {
	schema := optionSchema[kind]
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(o)) {
		if _, ok := schema[key]; !ok {
			errs = append(errs, &UnknownOptionError{Kind: kind, Key: key})
		}
	}
	return errors.Join(errs...)
}

// validateComplete checks required keys and value formats. It runs on
// concrete units: declared non-template units and template instances.
func (o Options) validateComplete(kind Kind) error {
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(optionSchema[kind])) {
		if optionSchema[kind][key] && strings.TrimSpace(o[key]) == "" {
			errs = append(errs, &MissingOptionError{Kind: kind, Key: key})
		}
	}
	if depth, ok := o["depth"]; ok && kind == KindVCSCheckout {
		if n, err := strconv.Atoi(depth); err != nil || n < 1 {
			errs = append(errs, &InvalidOptionError{Key: "depth", Value: depth, Reason: "must be a positive integer"})
		}
	}
	if shell, ok := o["shell"]; ok && kind == KindRawScript {
		if shell != "virtual" && shell != "native" {
			errs = append(errs, &InvalidOptionError{Key: "shell", Value: shell, Reason: "must be \"virtual\" or \"native\""})
		}
	}
	return errors.Join(errs...)
}
