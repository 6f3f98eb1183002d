// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/provisio/provisio/pkg/cueutil"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/syntax"
)

const (
	// FormatCUE is a CUE source manifest (.cue).
	FormatCUE Format = "cue"
	// FormatJSON is a JSON manifest (.json).
	FormatJSON Format = "json"
	// FormatYAML is a YAML manifest (.yaml, .yml).
	FormatYAML Format = "yaml"
	// FormatTOML is a TOML manifest (.toml).
	FormatTOML Format = "toml"

	schemaRoot = "#Manifest"
)

//go:embed manifest_schema.cue
var schemaBytes []byte

type (
	// Format identifies a manifest encoding.
	Format string

	rawManifest struct {
		Units []rawUnit `json:"units"`
	}

	rawUnit struct {
		Name        string           `json:"name"`
		Kind        string           `json:"kind"`
		Ecosystem   string           `json:"ecosystem"`
		Description string           `json:"description"`
		Requires    []rawRequirement `json:"requires"`
		Provides    []string         `json:"provides"`
		Check       *rawCheck        `json:"check"`
		Installs    string           `json:"installs"`
		Script      string           `json:"script"`
		Template    bool             `json:"template"`
		Override    bool             `json:"override"`
		Options     rawOptions       `json:"options"`
	}

	// rawRequirement accepts either a bare reference string or {ref, with}.
	rawRequirement struct {
		Ref  string     `json:"ref"`
		With rawOptions `json:"with"`
	}

	rawCheck struct {
		InPath     []string `json:"in_path"`
		PathExists []string `json:"path_exists"`
		Script     string   `json:"script"`
	}

	// rawOptions accepts scalar values and stores them as strings.
	rawOptions map[string]string
)

// UnmarshalJSON implements json.Unmarshaler.
func (r *rawRequirement) UnmarshalJSON(data []byte) error {
	var ref string
	if err := json.Unmarshal(data, &ref); err == nil {
		r.Ref = ref
		return nil
	}
	type plain rawRequirement
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("requirement must be a name or {ref, with}: %w", err)
	}
	*r = rawRequirement(p)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *rawOptions) UnmarshalJSON(data []byte) error {
	var values map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return err
	}
	out := make(rawOptions, len(values))
	for k, v := range values {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case json.Number:
			out[k] = tv.String()
		case bool:
			out[k] = fmt.Sprint(tv)
		default:
			return fmt.Errorf("option %q must be a string, number, or bool", k)
		}
	}
	*o = out
	return nil
}

// FormatFor returns the manifest format implied by the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s (expected .cue, .json, .yaml, .yml, or .toml)", ErrUnsupportedFormat, path)
	}
}

// Parse decodes and validates a manifest. Units are returned in declaration
// order; their Order field is assigned when they are added to a Store.
func Parse(data []byte, filename string) ([]*Unit, error) {
	format, err := FormatFor(filename)
	if err != nil {
		return nil, &ParseError{File: filename, Err: err}
	}
	return ParseFormat(data, filename, format)
}

// ParseFormat is Parse with an explicit format.
func ParseFormat(data []byte, filename string, format Format) ([]*Unit, error) {
	doc, err := toCUEInput(data, format)
	if err != nil {
		return nil, &ParseError{File: filename, Err: err}
	}

	value, err := cueutil.Validate(schemaBytes, doc, schemaRoot, cueutil.WithFilename(filename))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	var raw rawManifest
	if err := cueutil.DecodeJSON(value, &raw, filename); err != nil {
		return nil, &ParseError{Err: err}
	}

	units := make([]*Unit, 0, len(raw.Units))
	var errs []error
	for _, ru := range raw.Units {
		u, uerr := ru.toUnit(filename)
		if uerr != nil {
			errs = append(errs, &ParseError{File: filename, Unit: UnitName(ru.Name), Err: uerr})
			continue
		}
		units = append(units, u)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return units, nil
}

// toCUEInput converts YAML and TOML documents to JSON so the CUE schema can
// validate them. CUE and JSON sources are passed through.
func toCUEInput(data []byte, format Format) ([]byte, error) {
	var doc map[string]any
	switch format {
	case FormatCUE, FormatJSON:
		return data, nil
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoding YAML: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if doc == nil {
		doc = map[string]any{"units": []any{}}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting %s manifest: %w", format, err)
	}
	return out, nil
}

func (ru rawUnit) toUnit(source string) (*Unit, error) {
	u := &Unit{
		Name:        UnitName(ru.Name),
		Kind:        Kind(ru.Kind),
		Ecosystem:   Ecosystem(ru.Ecosystem),
		Description: ru.Description,
		Installs:    strings.TrimSpace(ru.Installs),
		Script:      ru.Script,
		Template:    ru.Template,
		Override:    ru.Override,
		Options:     Options(ru.Options),
		Source:      source,
	}
	if u.Options == nil {
		u.Options = Options{}
	}

	inferredKind, inferredEco := InferKind(u.Name)
	if u.Kind == "" {
		u.Kind = inferredKind
	}
	if u.Ecosystem == "" && u.Kind == KindLanguagePackage {
		u.Ecosystem = inferredEco
	}

	for _, p := range ru.Provides {
		u.Provides = append(u.Provides, CapabilityName(p))
	}
	for _, r := range ru.Requires {
		u.Requires = append(u.Requires, Requirement{Ref: r.Ref, With: Options(r.With)})
	}
	if ru.Check != nil {
		u.Check = &Check{InPath: ru.Check.InPath, PathExists: ru.Check.PathExists, Script: ru.Check.Script}
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Validate checks the unit against its kind. Template units skip the
// checks that depend on options supplied at instantiation.
func (u *Unit) Validate() error {
	if ok, errs := u.Name.IsValid(); !ok {
		return errors.Join(errs...)
	}
	if ok, errs := u.Kind.IsValid(); !ok {
		return errors.Join(errs...)
	}

	var errs []error
	if err := u.Options.validateKeys(u.Kind); err != nil {
		errs = append(errs, err)
	}
	for _, r := range u.Requires {
		if strings.TrimSpace(r.Ref) == "" {
			errs = append(errs, errors.New("requirement with empty reference"))
		}
	}

	switch u.Kind {
	case KindSystemPackage, KindBinaryCask, KindLanguagePackage:
		if u.Script != "" {
			errs = append(errs, fmt.Errorf("kind %s does not take a script", u.Kind))
		}
		if _, err := u.PackageSpec(); err != nil {
			errs = append(errs, err)
		}
		if u.Kind == KindLanguagePackage {
			if ok, ecoErrs := u.Ecosystem.IsValid(); !ok {
				errs = append(errs, ecoErrs...)
			}
		}
	case KindRawScript:
		if u.Installs != "" {
			errs = append(errs, fmt.Errorf("kind %s does not take installs", u.Kind))
		}
		if !u.Template && strings.TrimSpace(u.Script) == "" {
			errs = append(errs, fmt.Errorf("kind %s requires a script", u.Kind))
		}
		if err := checkShellSyntax(u.Script, "script"); err != nil {
			errs = append(errs, err)
		}
	case KindVCSCheckout, KindMeta:
		if u.Installs != "" || u.Script != "" {
			errs = append(errs, fmt.Errorf("kind %s does not take installs or script", u.Kind))
		}
	}
	if u.Kind != KindLanguagePackage && u.Ecosystem != "" {
		errs = append(errs, fmt.Errorf("ecosystem is only valid for kind %s", KindLanguagePackage))
	}

	if u.Check != nil {
		if err := checkShellSyntax(u.Check.Script, "check.script"); err != nil {
			errs = append(errs, err)
		}
	}

	if !u.Template {
		if err := u.Options.validateComplete(u.Kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkShellSyntax(script, field string) error {
	if strings.TrimSpace(script) == "" {
		return nil
	}
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), field); err != nil {
		return fmt.Errorf("%s syntax error: %w", field, err)
	}
	return nil
}
