// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidPackageSpec is returned when an "installs" spec cannot be parsed.
var ErrInvalidPackageSpec = errors.New("invalid package spec")

var (
	specPattern = regexp.MustCompile(`^([^\s<>=!~^]+)\s*(.*)$`)
	pinPattern  = regexp.MustCompile(`^=\s*v?(\S+)$`)
	barePattern = regexp.MustCompile(`^v?\d+(\.\d+){0,2}([-+]\S*)?$`)
)

type (
	// PackageSpec is a package name plus an optional version constraint,
	// written the way language ecosystems spell it: "papertrail == 0.9.14",
	// "rake ~> 13.0", "node".
	PackageSpec struct {
		Name string
		// Constraint is normalized semver syntax ("= 0.9.14"), empty for any version.
		Constraint string
	}

	// InvalidPackageSpecError describes an unparsable package spec.
	InvalidPackageSpecError struct {
		Spec string
		Err  error
	}
)

func (e *InvalidPackageSpecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid package spec %q: %v", e.Spec, e.Err)
	}
	return fmt.Sprintf("invalid package spec %q", e.Spec)
}

// Unwrap returns ErrInvalidPackageSpec for errors.Is() compatibility.
func (e *InvalidPackageSpecError) Unwrap() error { return ErrInvalidPackageSpec }

// ParsePackageSpec splits raw into a name and a validated constraint.
func ParsePackageSpec(raw string) (PackageSpec, error) {
	raw = strings.TrimSpace(raw)
	m := specPattern.FindStringSubmatch(raw)
	if m == nil {
		return PackageSpec{}, &InvalidPackageSpecError{Spec: raw}
	}
	spec := PackageSpec{Name: m[1]}
	if rest := strings.TrimSpace(m[2]); rest != "" {
		constraint, err := normalizeConstraint(rest)
		if err != nil {
			return PackageSpec{}, &InvalidPackageSpecError{Spec: raw, Err: err}
		}
		spec.Constraint = constraint
	}
	return spec, nil
}

// normalizeConstraint rewrites ecosystem spellings ("==") into semver syntax
// and validates the result.
func normalizeConstraint(raw string) (string, error) {
	c := strings.TrimSpace(raw)
	if strings.HasPrefix(c, "==") {
		c = "=" + strings.TrimPrefix(c, "==")
	}
	if barePattern.MatchString(c) {
		c = "= " + c
	}
	if _, err := semver.NewConstraint(c); err != nil {
		return "", fmt.Errorf("version constraint %q: %w", raw, err)
	}
	return c, nil
}

// Version returns the pinned version for "= X" constraints, or the raw
// constraint for ranges. It is empty when no constraint is set.
func (p PackageSpec) Version() string {
	if m := pinPattern.FindStringSubmatch(p.Constraint); m != nil {
		return m[1]
	}
	return p.Constraint
}

// Pinned returns the exact version for "= X" constraints.
func (p PackageSpec) Pinned() (string, bool) {
	if m := pinPattern.FindStringSubmatch(p.Constraint); m != nil {
		return m[1], true
	}
	return "", false
}

// SatisfiedBy reports whether any of the installed versions meets the
// constraint. Without a constraint any installed version counts. Versions
// that are not valid semver are ignored.
func (p PackageSpec) SatisfiedBy(installed ...string) bool {
	if len(installed) == 0 {
		return false
	}
	if p.Constraint == "" {
		return true
	}
	c, err := semver.NewConstraint(p.Constraint)
	if err != nil {
		return false
	}
	for _, raw := range installed {
		v, verr := semver.NewVersion(raw)
		if verr != nil {
			continue
		}
		if c.Check(v) {
			return true
		}
	}
	return false
}

// String renders the spec in "name constraint" form.
func (p PackageSpec) String() string {
	if p.Constraint == "" {
		return p.Name
	}
	return p.Name + " " + p.Constraint
}
