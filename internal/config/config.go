// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/provisio/provisio/internal/issue"
	"github.com/provisio/provisio/pkg/cueutil"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "provisio"
	// ConfigFileName is the name of the config file inside ConfigDir.
	ConfigFileName = "config.cue"
	// LocalConfigFileName is the config file looked up in the working directory.
	LocalConfigFileName = "provisio.cue"
	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "PROVISIO"
	// DefaultManifestPattern is used when neither flags nor config name manifests.
	DefaultManifestPattern = "manifests/**/*.{cue,yaml,yml,toml,json}"
)

//go:embed config_schema.cue
var configSchema []byte

func newViper(envPrefix string) *viper.Viper {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault("manifests", d.Manifests)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("failure_policy", string(d.FailurePolicy))
	v.SetDefault("capability_conflicts", string(d.CapabilityConflicts))
	v.SetDefault("grace_period", d.GracePeriod.String())
	v.SetDefault("metrics_file", d.MetricsFile)
	setPackageDefaults(v, "backends.system_package", d.Backends.SystemPackage)
	setPackageDefaults(v, "backends.binary_cask", d.Backends.BinaryCask)
	for eco, cmds := range d.Backends.LanguagePackage {
		setPackageDefaults(v, "backends.language_package."+eco, cmds)
	}
	v.SetDefault("backends.vcs.git", d.Backends.VCS.Git)
	v.SetDefault("backends.script.shell", d.Backends.Script.Shell)
	v.SetDefault("ui.verbose", d.UI.Verbose)
	v.SetDefault("ui.color", string(d.UI.Color))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setPackageDefaults(v *viper.Viper, prefix string, p PackageCommands) {
	v.SetDefault(prefix+".install", p.Install)
	v.SetDefault(prefix+".install_version", p.InstallVersion)
	v.SetDefault(prefix+".query", p.Query)
	v.SetDefault(prefix+".tap", p.Tap)
}

// load resolves the config file, merges it over the defaults and validates
// the result.
func (p *viperProvider) load(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper(p.envPrefix)

	path, err := p.resolvePath(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the values match the schema shown by 'provisio config show'").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Source = path

	if ok, errs := cfg.IsValid(); !ok {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithIssue(issue.ConfigLoadFailedId).
			WithSuggestion(fmt.Sprintf("Check %s_* environment variables as well as the config file", p.envPrefix)).
			Wrap(errors.Join(errs...)).
			BuildError()
	}
	return &cfg, nil
}

// resolvePath returns the config file to load, or "" when none exists. An
// explicit path that does not exist is an error.
func (p *viperProvider) resolvePath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Verify the file path is correct").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	dir := opts.ConfigDirPath
	if dir == "" {
		var err error
		if dir, err = configDir(p.envPrefix); err != nil {
			return "", err
		}
	}
	if path := filepath.Join(dir, ConfigFileName); fileExists(path) {
		return path, nil
	}
	if local := p.localConfigPath(); fileExists(local) {
		return local, nil
	}
	return "", nil
}

// loadCUEIntoViper validates the file against #Config and merges it into v.
// Fields are optional, so the document is validated without requiring
// concreteness and decoded to a map for Viper.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	unified, err := cueutil.Validate(configSchema, data, "#Config",
		cueutil.WithFilename(path), cueutil.WithConcrete(false))
	if err != nil {
		return err
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GenerateCUE renders cfg as a config file that validates against #Config.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// provisio configuration\n")
	if cfg.Source != "" {
		fmt.Fprintf(&sb, "// loaded from %s\n", cfg.Source)
	}
	sb.WriteString("\nmanifests: [\n")
	for _, m := range cfg.Manifests {
		fmt.Fprintf(&sb, "\t%q,\n", m)
	}
	sb.WriteString("]\n")
	fmt.Fprintf(&sb, "concurrency: %d\n", cfg.Concurrency)
	fmt.Fprintf(&sb, "failure_policy: %q\n", cfg.FailurePolicy)
	fmt.Fprintf(&sb, "capability_conflicts: %q\n", cfg.CapabilityConflicts)
	fmt.Fprintf(&sb, "grace_period: %q\n", cfg.GracePeriod.String())
	if cfg.MetricsFile != "" {
		fmt.Fprintf(&sb, "metrics_file: %q\n", cfg.MetricsFile)
	}

	sb.WriteString("\nbackends: {\n")
	writePackageCUE(&sb, "\t", "system_package", cfg.Backends.SystemPackage)
	writePackageCUE(&sb, "\t", "binary_cask", cfg.Backends.BinaryCask)
	if len(cfg.Backends.LanguagePackage) > 0 {
		sb.WriteString("\tlanguage_package: {\n")
		for _, eco := range []string{"gem", "pip", "npm"} {
			if cmds, ok := cfg.Backends.LanguagePackage[eco]; ok {
				writePackageCUE(&sb, "\t\t", eco, cmds)
			}
		}
		sb.WriteString("\t}\n")
	}
	fmt.Fprintf(&sb, "\tvcs: git: %q\n", cfg.Backends.VCS.Git)
	fmt.Fprintf(&sb, "\tscript: shell: %q\n", cfg.Backends.Script.Shell)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	fmt.Fprintf(&sb, "\tcolor: %q\n", cfg.UI.Color)
	sb.WriteString("}\n")
	return sb.String()
}

func writePackageCUE(sb *strings.Builder, indent, key string, p PackageCommands) {
	fmt.Fprintf(sb, "%s%s: {\n", indent, key)
	fmt.Fprintf(sb, "%s\tinstall: %q\n", indent, p.Install)
	if p.InstallVersion != "" {
		fmt.Fprintf(sb, "%s\tinstall_version: %q\n", indent, p.InstallVersion)
	}
	fmt.Fprintf(sb, "%s\tquery: %q\n", indent, p.Query)
	if p.Tap != "" {
		fmt.Fprintf(sb, "%s\ttap: %q\n", indent, p.Tap)
	}
	fmt.Fprintf(sb, "%s}\n", indent)
}
