// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/provisio/provisio/internal/backend"
	"github.com/provisio/provisio/internal/executor"
	"github.com/provisio/provisio/internal/registry"
	"github.com/provisio/provisio/pkg/manifest"
)

const (
	// ColorAuto colors output when stdout is a terminal.
	ColorAuto ColorMode = "auto"
	// ColorAlways forces colored output.
	ColorAlways ColorMode = "always"
	// ColorNever disables colored output.
	ColorNever ColorMode = "never"
)

var (
	// ErrInvalidColorMode is returned when a ColorMode value is not recognized.
	ErrInvalidColorMode = errors.New("invalid color mode")
	// ErrInvalidShell is returned when the raw-script shell is neither virtual nor native.
	ErrInvalidShell = errors.New("invalid script shell")
	// ErrInvalidConcurrency is returned for a concurrency below 1.
	ErrInvalidConcurrency = errors.New("invalid concurrency")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorMode selects when terminal output is colored.
	ColorMode string

	// InvalidColorModeError is returned when a ColorMode value is not recognized.
	InvalidColorModeError struct {
		Value ColorMode
	}

	// InvalidConfigError collects every field-level problem of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// PackageCommands mirrors backend.PackageCommands for one package manager.
	PackageCommands struct {
		Install        string `json:"install" mapstructure:"install"`
		InstallVersion string `json:"install_version" mapstructure:"install_version"`
		Query          string `json:"query" mapstructure:"query"`
		Tap            string `json:"tap" mapstructure:"tap"`
	}

	// VCSConfig configures vcs-checkout units.
	VCSConfig struct {
		Git string `json:"git" mapstructure:"git"`
	}

	// ScriptConfig configures raw-script units.
	ScriptConfig struct {
		// Shell is "virtual" (embedded interpreter) or "native" (/bin/sh).
		Shell string `json:"shell" mapstructure:"shell"`
	}

	// BackendsConfig holds the installer commands of every adapter.
	BackendsConfig struct {
		SystemPackage   PackageCommands            `json:"system_package" mapstructure:"system_package"`
		BinaryCask      PackageCommands            `json:"binary_cask" mapstructure:"binary_cask"`
		LanguagePackage map[string]PackageCommands `json:"language_package" mapstructure:"language_package"`
		VCS             VCSConfig                  `json:"vcs" mapstructure:"vcs"`
		Script          ScriptConfig               `json:"script" mapstructure:"script"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		Verbose bool      `json:"verbose" mapstructure:"verbose"`
		Color   ColorMode `json:"color" mapstructure:"color"`
	}

	// Config is the effective engine configuration.
	Config struct {
		Manifests           []string                `json:"manifests" mapstructure:"manifests"`
		Concurrency         int                     `json:"concurrency" mapstructure:"concurrency"`
		FailurePolicy       executor.FailurePolicy  `json:"failure_policy" mapstructure:"failure_policy"`
		CapabilityConflicts registry.ConflictPolicy `json:"capability_conflicts" mapstructure:"capability_conflicts"`
		GracePeriod         time.Duration           `json:"grace_period" mapstructure:"grace_period"`
		MetricsFile         string                  `json:"metrics_file" mapstructure:"metrics_file"`
		Backends            BackendsConfig          `json:"backends" mapstructure:"backends"`
		UI                  UIConfig                `json:"ui" mapstructure:"ui"`

		// Source is the config file that was loaded, empty when only defaults
		// and the environment apply.
		Source string `json:"-" mapstructure:"-"`
	}
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	b := backend.DefaultConfig()
	lang := make(map[string]PackageCommands, len(b.Language))
	for eco, cmds := range b.Language {
		lang[string(eco)] = fromBackend(cmds)
	}
	return &Config{
		Manifests:           []string{DefaultManifestPattern},
		Concurrency:         executor.DefaultConcurrency,
		FailurePolicy:       executor.FailureContinue,
		CapabilityConflicts: registry.PolicyError,
		GracePeriod:         executor.DefaultGracePeriod,
		Backends: BackendsConfig{
			SystemPackage:   fromBackend(b.SystemPackage),
			BinaryCask:      fromBackend(b.BinaryCask),
			LanguagePackage: lang,
			VCS:             VCSConfig{Git: b.Git},
			Script:          ScriptConfig{Shell: b.Shell},
		},
		UI: UIConfig{Color: ColorAuto},
	}
}

func fromBackend(p backend.PackageCommands) PackageCommands {
	return PackageCommands{Install: p.Install, InstallVersion: p.InstallVersion, Query: p.Query, Tap: p.Tap}
}

func (p PackageCommands) toBackend() backend.PackageCommands {
	return backend.PackageCommands{Install: p.Install, InstallVersion: p.InstallVersion, Query: p.Query, Tap: p.Tap}
}

// Backend converts the backends section to the adapter configuration.
func (c BackendsConfig) Backend() backend.Config {
	lang := make(map[manifest.Ecosystem]backend.PackageCommands, len(c.LanguagePackage))
	for eco, cmds := range c.LanguagePackage {
		lang[manifest.Ecosystem(eco)] = cmds.toBackend()
	}
	return backend.Config{
		SystemPackage: c.SystemPackage.toBackend(),
		BinaryCask:    c.BinaryCask.toBackend(),
		Language:      lang,
		Git:           c.VCS.Git,
		Shell:         c.Script.Shell,
	}
}

// IsValid returns whether the ColorMode is one of the defined modes.
func (m ColorMode) IsValid() (bool, []error) {
	switch m {
	case ColorAuto, ColorAlways, ColorNever:
		return true, nil
	default:
		return false, []error{&InvalidColorModeError{Value: m}}
	}
}

func (e *InvalidColorModeError) Error() string {
	return fmt.Sprintf("invalid color mode %q (valid: auto, always, never)", e.Value)
}

// Unwrap returns ErrInvalidColorMode for errors.Is() compatibility.
func (e *InvalidColorModeError) Unwrap() error { return ErrInvalidColorMode }

// IsValid checks the constraints that survive environment overrides, which
// bypass the CUE schema.
func (c *Config) IsValid() (bool, []error) {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("%w: %d (must be at least 1)", ErrInvalidConcurrency, c.Concurrency))
	}
	if ok, fe := c.FailurePolicy.IsValid(); !ok {
		errs = append(errs, fe...)
	}
	if ok, fe := c.CapabilityConflicts.IsValid(); !ok {
		errs = append(errs, fe...)
	}
	if ok, fe := c.UI.Color.IsValid(); !ok {
		errs = append(errs, fe...)
	}
	if s := c.Backends.Script.Shell; s != backend.ShellVirtual && s != backend.ShellNative {
		errs = append(errs, fmt.Errorf("%w: %q (valid: virtual, native)", ErrInvalidShell, s))
	}
	for eco := range c.Backends.LanguagePackage {
		if ok, fe := manifest.Ecosystem(eco).IsValid(); !ok {
			errs = append(errs, fe...)
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap exposes ErrInvalidConfig and every field error.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}
