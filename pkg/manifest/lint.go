// SPDX-License-Identifier: MPL-2.0

package manifest

import "fmt"

// Warning is a non-fatal finding about a set of declarations.
type Warning struct {
	Unit    UnitName
	Source  string
	Message string
}

func (w Warning) String() string {
	if w.Source != "" {
		return fmt.Sprintf("%s: unit %q: %s", w.Source, w.Unit, w.Message)
	}
	return fmt.Sprintf("unit %q: %s", w.Unit, w.Message)
}

// Lint reports declarations that are legal but likely mistakes:
//   - a unit providing a capability that names a different unit's bare
//     name ("awscli.managed" providing "zsh" while "zsh.managed" exists)
//   - a unit listing the same capability twice
//   - a template that no requirement could instantiate because it requires itself
func Lint(s *Store) []Warning {
	bare := make(map[string]UnitName, s.Len())
	for _, u := range s.Units() {
		if BareName(u.Name) != string(u.Name) {
			bare[BareName(u.Name)] = u.Name
		}
	}

	var warnings []Warning
	for _, u := range s.Units() {
		seen := make(map[CapabilityName]bool, len(u.Provides))
		for _, c := range u.Provides {
			if seen[c] {
				warnings = append(warnings, Warning{Unit: u.Name, Source: u.Source,
					Message: fmt.Sprintf("capability %q is listed more than once", c)})
				continue
			}
			seen[c] = true
			if other, ok := bare[string(c)]; ok && other != u.Name && BareName(u.Name) != string(c) {
				warnings = append(warnings, Warning{Unit: u.Name, Source: u.Source,
					Message: fmt.Sprintf("provides %q, which is the package installed by %q", c, other)})
			}
		}
		if u.Template {
			for _, r := range u.Requires {
				if r.Ref == string(u.Name) {
					warnings = append(warnings, Warning{Unit: u.Name, Source: u.Source,
						Message: "template requires itself"})
				}
			}
		}
	}
	return warnings
}
