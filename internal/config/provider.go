// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"path/filepath"
)

type (
	// LoadOptions are the per-invocation inputs of Load.
	LoadOptions struct {
		// ConfigFilePath is the --config flag. When set it is the only file
		// consulted and it must exist.
		ConfigFilePath string
		// ConfigDirPath replaces ConfigDir for this load.
		ConfigDirPath string
	}

	// Provider resolves the effective engine configuration. The CLI takes one
	// as a dependency so commands can run against a fixed Config.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	// ProviderOption configures NewProvider.
	ProviderOption func(*viperProvider)

	// viperProvider builds a fresh viper instance per Load: defaults, then
	// the CUE config file, then environment overrides.
	viperProvider struct {
		envPrefix string
		workDir   string
	}
)

// WithEnvPrefix changes the prefix of environment overrides, including the
// <PREFIX>_CONFIG_DIR relocation. The default is PROVISIO.
func WithEnvPrefix(prefix string) ProviderOption {
	return func(p *viperProvider) { p.envPrefix = prefix }
}

// WithWorkDir sets the directory searched for provisio.cue. The default is
// the process working directory.
func WithWorkDir(dir string) ProviderOption {
	return func(p *viperProvider) { p.workDir = dir }
}

// NewProvider returns the Provider used by the CLI.
func NewProvider(opts ...ProviderOption) Provider {
	p := &viperProvider{envPrefix: EnvPrefix}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *viperProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return p.load(ctx, opts)
}

func (p *viperProvider) localConfigPath() string {
	if p.workDir == "" {
		return LocalConfigFileName
	}
	return filepath.Join(p.workDir, LocalConfigFileName)
}
