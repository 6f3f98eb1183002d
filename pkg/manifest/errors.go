// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is the sentinel error wrapped by every ParseError.
	ErrParse = errors.New("manifest parse error")
	// ErrDuplicateUnit is returned when two declarations share a unit name.
	ErrDuplicateUnit = errors.New("duplicate unit name")
	// ErrUnsupportedFormat is returned for manifest files with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
	// ErrNoManifests is returned when the given paths and patterns match no file.
	ErrNoManifests = errors.New("no manifest files found")
)

type (
	// ParseError reports a malformed declaration. File and Unit locate the
	// problem when known.
	ParseError struct {
		File string
		Unit UnitName
		Err  error
	}

	// DuplicateUnitError reports a unit name declared twice, possibly across files.
	DuplicateUnitError struct {
		Name        UnitName
		FirstSource string
		Source      string
	}
)

func (e *ParseError) Error() string {
	switch {
	case e.File != "" && e.Unit != "":
		return fmt.Sprintf("%s: unit %q: %v", e.File, e.Unit, e.Err)
	case e.File != "":
		return fmt.Sprintf("%s: %v", e.File, e.Err)
	case e.Unit != "":
		return fmt.Sprintf("unit %q: %v", e.Unit, e.Err)
	default:
		return e.Err.Error()
	}
}

// Unwrap exposes both ErrParse and the underlying cause.
func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

func (e *DuplicateUnitError) Error() string {
	if e.FirstSource != "" && e.FirstSource != e.Source {
		return fmt.Sprintf("unit %q is already declared in %s", e.Name, e.FirstSource)
	}
	return fmt.Sprintf("unit %q is declared more than once", e.Name)
}

// Unwrap returns ErrDuplicateUnit for errors.Is() compatibility.
func (e *DuplicateUnitError) Unwrap() error { return ErrDuplicateUnit }
