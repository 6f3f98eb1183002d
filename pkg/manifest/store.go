// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// Store holds every unit declared across a run's manifests, in declaration
// order. A Store is not safe for concurrent mutation; once loading is done
// it is only read.
type Store struct {
	units  []*Unit
	byName map[UnitName]*Unit
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{byName: make(map[UnitName]*Unit)}
}

// Add appends u and assigns its declaration index. A name that is already
// present is rejected with a ParseError wrapping DuplicateUnitError.
func (s *Store) Add(u *Unit) error {
	if first, ok := s.byName[u.Name]; ok {
		return &ParseError{
			File: u.Source,
			Unit: u.Name,
			Err:  &DuplicateUnitError{Name: u.Name, FirstSource: first.Source, Source: u.Source},
		}
	}
	u.Order = len(s.units)
	s.units = append(s.units, u)
	s.byName[u.Name] = u
	return nil
}

// Get returns the unit with the given name.
func (s *Store) Get(name UnitName) (*Unit, bool) {
	u, ok := s.byName[name]
	return u, ok
}

// Units returns the units in declaration order.
func (s *Store) Units() []*Unit { return slices.Clone(s.units) }

// Len returns the number of units.
func (s *Store) Len() int { return len(s.units) }

// Load reads and merges the given manifest files, in order, into a new Store.
// Every file is parsed even after a failure so that all errors are reported.
func Load(paths []string) (*Store, error) {
	store := NewStore()
	var errs []error
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, &ParseError{File: path, Err: err})
			continue
		}
		units, err := Parse(data, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, u := range units {
			if aerr := store.Add(u); aerr != nil {
				errs = append(errs, aerr)
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return store, nil
}

// Expand resolves manifest paths and doublestar patterns ("manifests/**/*.yaml")
// to a deduplicated file list. A literal path that does not exist is an
// error; a pattern that matches nothing is not, unless nothing matches at all.
func Expand(patterns []string) ([]string, error) {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	add := func(p string) {
		clean := filepath.Clean(p)
		if !seen[clean] {
			seen[clean] = true
			out = append(out, clean)
		}
	}

	for _, pattern := range patterns {
		if !hasMeta(pattern) {
			info, err := os.Stat(pattern)
			if err != nil {
				return nil, &ParseError{File: pattern, Err: err}
			}
			if info.IsDir() {
				return nil, &ParseError{File: pattern, Err: errors.New("is a directory; use a pattern such as dir/*.yaml")}
			}
			add(pattern)
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("manifest pattern %q: %w", pattern, err)
		}
		slices.Sort(matches)
		for _, m := range matches {
			if _, ferr := FormatFor(m); ferr == nil {
				add(m)
			}
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w (patterns: %v)", ErrNoManifests, patterns)
	}
	return out, nil
}

func hasMeta(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
