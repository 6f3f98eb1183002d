// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrNotTemplate is returned when options are supplied to a non-template unit.
var ErrNotTemplate = errors.New("unit is not a template")

// InstanceName returns the name of the instance of template created with
// options: "base.repo{path=~/src/app,url=git@host:app}". Keys are sorted so
// equal option sets always produce the same name.
func InstanceName(template UnitName, with Options) UnitName {
	if len(with) == 0 {
		return template
	}
	keys := slices.Sorted(maps.Keys(with))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + with[k]
	}
	return UnitName(fmt.Sprintf("%s{%s}", template, strings.Join(parts, ",")))
}

// Instantiate returns a concrete, non-template copy of u with the given
// options merged over its own. The instance keeps u's requirements and is
// validated as a declared unit would be. Instances are never registered as
// capability providers.
func (u *Unit) Instantiate(with Options) (*Unit, error) {
	if !u.Template {
		return nil, fmt.Errorf("%w: %s", ErrNotTemplate, u.Name)
	}
	inst := u.Clone()
	inst.Name = InstanceName(u.Name, with)
	inst.Options = u.Options.Merge(with)
	inst.Template = false
	inst.Override = false
	inst.Origin = u.Name
	if err := inst.Validate(); err != nil {
		return nil, &ParseError{File: u.Source, Unit: inst.Name, Err: err}
	}
	return inst, nil
}
