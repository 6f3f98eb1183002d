// SPDX-License-Identifier: MPL-2.0

// Package registry maps capability names to the unit that provides them.
//
// Every unit registers the capabilities it provides (its own name when it
// declares none). By default a capability may have only one provider; a
// second claim is a CapabilityConflictError unless the newcomer is marked
// override or the registry runs with the first-wins policy.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/provisio/provisio/pkg/manifest"
)

const (
	// PolicyError rejects a second provider for a capability.
	PolicyError ConflictPolicy = "error"
	// PolicyFirstWins keeps the first provider and logs a warning.
	PolicyFirstWins ConflictPolicy = "first-wins"
)

var (
	// ErrCapabilityConflict is returned when two units provide the same capability.
	ErrCapabilityConflict = errors.New("capability conflict")
	// ErrUnknownReference is returned when a reference names neither a unit nor a capability.
	ErrUnknownReference = errors.New("unknown unit or capability")
	// ErrInvalidConflictPolicy is returned for an unrecognized ConflictPolicy.
	ErrInvalidConflictPolicy = errors.New("invalid capability conflict policy")
)

type (
	// ConflictPolicy selects how competing providers are handled.
	ConflictPolicy string

	// CapabilityConflictError names a capability with two providers.
	CapabilityConflictError struct {
		Capability manifest.CapabilityName
		Existing   manifest.UnitName
		Incoming   manifest.UnitName
	}

	// Option configures a Registry.
	Option func(*Registry)

	// Registry is the capability index. It is built once per run and read
	// concurrently afterwards.
	Registry struct {
		policy    ConflictPolicy
		logger    *slog.Logger
		units     map[manifest.UnitName]*manifest.Unit
		providers map[manifest.CapabilityName]*manifest.Unit
	}
)

func (e *CapabilityConflictError) Error() string {
	return fmt.Sprintf("capability %q is provided by both %q and %q", e.Capability, e.Existing, e.Incoming)
}

// Unwrap returns ErrCapabilityConflict for errors.Is() compatibility.
func (e *CapabilityConflictError) Unwrap() error { return ErrCapabilityConflict }

// IsValid returns whether the policy is recognized.
func (p ConflictPolicy) IsValid() (bool, []error) {
	switch p {
	case PolicyError, PolicyFirstWins:
		return true, nil
	default:
		return false, []error{fmt.Errorf("%w: %q (valid: error, first-wins)", ErrInvalidConflictPolicy, p)}
	}
}

// WithPolicy sets the conflict policy. The default is PolicyError.
func WithPolicy(p ConflictPolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithLogger sets the logger used for override and first-wins notices.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		policy:    PolicyError,
		logger:    slog.Default(),
		units:     make(map[manifest.UnitName]*manifest.Unit),
		providers: make(map[manifest.CapabilityName]*manifest.Unit),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromStore registers every unit of s in declaration order. All conflicts
// are reported, not only the first.
func FromStore(s *manifest.Store, opts ...Option) (*Registry, error) {
	r := New(opts...)
	var errs []error
	for _, u := range s.Units() {
		if err := r.Register(u); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Register records u and the capabilities it provides. Template units are
// registered too: a requirement must be able to name them.
func (r *Registry) Register(u *manifest.Unit) error {
	r.units[u.Name] = u

	var errs []error
	for _, c := range u.EffectiveProvides() {
		existing, taken := r.providers[c]
		switch {
		case !taken, existing == u:
			r.providers[c] = u
		case u.Override:
			r.logger.Info("capability provider overridden",
				"capability", c, "previous", existing.Name, "provider", u.Name)
			r.providers[c] = u
		case r.policy == PolicyFirstWins:
			r.logger.Warn("capability already provided, keeping first provider",
				"capability", c, "provider", existing.Name, "ignored", u.Name)
		default:
			errs = append(errs, &CapabilityConflictError{Capability: c, Existing: existing.Name, Incoming: u.Name})
		}
	}
	return errors.Join(errs...)
}

// Resolve returns the unit a reference points at. A literal unit name takes
// precedence over a capability of the same name.
func (r *Registry) Resolve(ref string) (*manifest.Unit, error) {
	if u, ok := r.units[manifest.UnitName(ref)]; ok {
		return u, nil
	}
	if u, ok := r.providers[manifest.CapabilityName(ref)]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownReference, ref)
}

// Provider returns the unit that provides capability c.
func (r *Registry) Provider(c manifest.CapabilityName) (*manifest.Unit, bool) {
	u, ok := r.providers[c]
	return u, ok
}

// Capabilities returns every registered capability, sorted.
func (r *Registry) Capabilities() []manifest.CapabilityName {
	return slices.Sorted(maps.Keys(r.providers))
}
