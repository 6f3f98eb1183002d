// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

const (
	// KindSystemPackage installs through the host package manager.
	KindSystemPackage Kind = "system-package"
	// KindBinaryCask installs a prebuilt application bundle.
	KindBinaryCask Kind = "binary-cask"
	// KindLanguagePackage installs through a language ecosystem tool (gem, pip, npm).
	KindLanguagePackage Kind = "language-package"
	// KindVCSCheckout clones a repository to a path when the path is absent.
	KindVCSCheckout Kind = "vcs-checkout"
	// KindRawScript runs a shell script.
	KindRawScript Kind = "raw-script"
	// KindMeta groups requirements and has no install action of its own.
	KindMeta Kind = "meta"

	// EcosystemGem is RubyGems.
	EcosystemGem Ecosystem = "gem"
	// EcosystemPip is the Python package installer.
	EcosystemPip Ecosystem = "pip"
	// EcosystemNpm is the Node package manager.
	EcosystemNpm Ecosystem = "npm"
)

var (
	// ErrInvalidKind is returned when a Kind value is not recognized.
	ErrInvalidKind = errors.New("invalid unit kind")
	// ErrInvalidEcosystem is returned when an Ecosystem value is not recognized.
	ErrInvalidEcosystem = errors.New("invalid language ecosystem")
	// ErrInvalidUnitName is returned when a UnitName is empty or whitespace-only.
	ErrInvalidUnitName = errors.New("invalid unit name")
	// ErrInvalidCapabilityName is returned when a CapabilityName is empty or whitespace-only.
	ErrInvalidCapabilityName = errors.New("invalid capability name")

	// kindSuffixes maps name suffixes to kinds for units that omit "kind".
	kindSuffixes = []struct {
		suffix    string
		kind      Kind
		ecosystem Ecosystem
	}{
		{".managed", KindSystemPackage, ""},
		{".cask", KindBinaryCask, ""},
		{".gem", KindLanguagePackage, EcosystemGem},
		{".pip", KindLanguagePackage, EcosystemPip},
		{".npm", KindLanguagePackage, EcosystemNpm},
		{".repo", KindVCSCheckout, ""},
		{".sh", KindRawScript, ""},
	}
)

type (
	// UnitName identifies a unit. Names are unique across all manifests of a run.
	UnitName string

	// CapabilityName is a logical name a unit can claim to satisfy ("aws", "kubectl").
	CapabilityName string

	// Kind selects the backend adapter that installs a unit.
	Kind string

	// Ecosystem selects the language tool used by language-package units.
	Ecosystem string

	// InvalidKindError is returned when a Kind value is not recognized.
	// It wraps ErrInvalidKind for errors.Is() compatibility.
	InvalidKindError struct {
		Value Kind
	}

	// InvalidEcosystemError is returned when an Ecosystem value is not recognized.
	InvalidEcosystemError struct {
		Value Ecosystem
	}

	// Requirement is a reference to a unit name or capability name, optionally
	// carrying options that instantiate a template unit.
	Requirement struct {
		Ref  string
		With Options
	}

	// Check is a side-effect-free predicate over host state. Every clause that
	// is set must hold for the check to pass.
	Check struct {
		// InPath lists executables that must be found on PATH.
		InPath []string
		// PathExists lists files or directories that must exist. A leading
		// "~/" is resolved against the home directory.
		PathExists []string
		// Script is a shell snippet that must exit 0.
		Script string
	}

	// Unit is a single declared dependency target. Units are read-only once
	// they have been added to a Store.
	Unit struct {
		Name        UnitName
		Kind        Kind
		Ecosystem   Ecosystem
		Description string
		Requires    []Requirement
		Provides    []CapabilityName
		Check       *Check
		// Installs is the backend package spec. Empty means the unit name
		// without its kind suffix.
		Installs string
		// Script is the body run by raw-script units.
		Script string
		// Options are passed through to the backend adapter.
		Options Options
		// Template units are never planned on their own; they are
		// instantiated by requirements that carry options.
		Template bool
		// Override marks an intentional replacement of an earlier provider
		// of the same capabilities.
		Override bool

		// Source is the manifest file the unit was declared in.
		Source string
		// Order is the declaration index across all loaded manifests.
		Order int
		// Origin names the template this unit was instantiated from.
		Origin UnitName
	}
)

func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid unit kind %q (valid: %s)", e.Value, joinKinds(Kinds()))
}

// Unwrap returns ErrInvalidKind for errors.Is() compatibility.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

func (e *InvalidEcosystemError) Error() string {
	return fmt.Sprintf("invalid language ecosystem %q (valid: gem, pip, npm)", e.Value)
}

// Unwrap returns ErrInvalidEcosystem for errors.Is() compatibility.
func (e *InvalidEcosystemError) Unwrap() error { return ErrInvalidEcosystem }

// Kinds returns every supported kind.
func Kinds() []Kind {
	return []Kind{KindSystemPackage, KindBinaryCask, KindLanguagePackage, KindVCSCheckout, KindRawScript, KindMeta}
}

// IsValid returns whether the Kind is one of the supported kinds,
// and a list of validation errors if it is not.
func (k Kind) IsValid() (bool, []error) {
	if slices.Contains(Kinds(), k) {
		return true, nil
	}
	return false, []error{&InvalidKindError{Value: k}}
}

// String returns the string representation of the Kind.
func (k Kind) String() string { return string(k) }

// IsValid returns whether the Ecosystem is supported.
func (e Ecosystem) IsValid() (bool, []error) {
	switch e {
	case EcosystemGem, EcosystemPip, EcosystemNpm:
		return true, nil
	default:
		return false, []error{&InvalidEcosystemError{Value: e}}
	}
}

// IsValid returns whether the UnitName is non-empty and not whitespace-only.
func (n UnitName) IsValid() (bool, []error) {
	if strings.TrimSpace(string(n)) == "" {
		return false, []error{ErrInvalidUnitName}
	}
	return true, nil
}

// String returns the string representation of the UnitName.
func (n UnitName) String() string { return string(n) }

// IsValid returns whether the CapabilityName is non-empty and not whitespace-only.
func (c CapabilityName) IsValid() (bool, []error) {
	if strings.TrimSpace(string(c)) == "" {
		return false, []error{ErrInvalidCapabilityName}
	}
	return true, nil
}

// String returns the string representation of the CapabilityName.
func (c CapabilityName) String() string { return string(c) }

// InferKind derives the kind and ecosystem from a name suffix
// ("node.managed", "aws-vault.cask", "papertrail.gem"). Names without a
// known suffix are meta units.
func InferKind(name UnitName) (Kind, Ecosystem) {
	for _, s := range kindSuffixes {
		if strings.HasSuffix(string(name), s.suffix) {
			return s.kind, s.ecosystem
		}
	}
	return KindMeta, ""
}

// BareName returns the unit name without its kind suffix.
func BareName(name UnitName) string {
	for _, s := range kindSuffixes {
		if trimmed, ok := strings.CutSuffix(string(name), s.suffix); ok && trimmed != "" {
			return trimmed
		}
	}
	return string(name)
}

// EffectiveProvides returns the capabilities the unit satisfies. A unit that
// declares none provides its own name.
func (u *Unit) EffectiveProvides() []CapabilityName {
	if len(u.Provides) == 0 {
		return []CapabilityName{CapabilityName(u.Name)}
	}
	return slices.Clone(u.Provides)
}

// PackageSpec returns the parsed backend package spec for package kinds.
func (u *Unit) PackageSpec() (PackageSpec, error) {
	raw := u.Installs
	if raw == "" {
		raw = BareName(u.Name)
	}
	spec, err := ParsePackageSpec(raw)
	if err != nil {
		return PackageSpec{}, err
	}
	if spec.Constraint == "" && u.Options["version"] != "" {
		constraint, cerr := normalizeConstraint(u.Options["version"])
		if cerr != nil {
			return PackageSpec{}, cerr
		}
		spec.Constraint = constraint
	}
	return spec, nil
}

// Clone returns a deep copy of the unit.
func (u *Unit) Clone() *Unit {
	c := *u
	c.Provides = slices.Clone(u.Provides)
	c.Options = maps.Clone(u.Options)
	c.Requires = make([]Requirement, len(u.Requires))
	for i, r := range u.Requires {
		c.Requires[i] = Requirement{Ref: r.Ref, With: maps.Clone(r.With)}
	}
	if u.Check != nil {
		chk := *u.Check
		chk.InPath = slices.Clone(u.Check.InPath)
		chk.PathExists = slices.Clone(u.Check.PathExists)
		c.Check = &chk
	}
	return &c
}

// IsEmpty reports whether the check has no clauses.
func (c *Check) IsEmpty() bool {
	return c == nil || (len(c.InPath) == 0 && len(c.PathExists) == 0 && strings.TrimSpace(c.Script) == "")
}

func joinKinds(kinds []Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
