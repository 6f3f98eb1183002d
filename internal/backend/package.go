// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/provisio/provisio/pkg/manifest"
)

// versionPattern matches version tokens in package manager output: a number
// at the start of a line or after whitespace, "(", "@", ",", "=", ":" or "v".
var versionPattern = regexp.MustCompile(`(?:^|[\s(@,=:v])(\d+(?:\.\d+)*(?:-[0-9A-Za-z.]+)?)`)

// packageAdapter drives a command-line package manager for the
// system-package, binary-cask and language-package kinds.
type packageAdapter struct {
	kind     manifest.Kind
	commands func(u *manifest.Unit) (PackageCommands, error)
	deps
}

func newPackageAdapter(kind manifest.Kind, cfg Config, d deps) *packageAdapter {
	a := &packageAdapter{kind: kind, deps: d}
	switch kind {
	case manifest.KindSystemPackage:
		a.commands = func(*manifest.Unit) (PackageCommands, error) { return cfg.SystemPackage, nil }
	case manifest.KindBinaryCask:
		a.commands = func(*manifest.Unit) (PackageCommands, error) { return cfg.BinaryCask, nil }
	default:
		a.commands = func(u *manifest.Unit) (PackageCommands, error) {
			cmds, ok := cfg.Language[u.Ecosystem]
			if !ok {
				return PackageCommands{}, fmt.Errorf("no commands configured for ecosystem %q", u.Ecosystem)
			}
			return cmds, nil
		}
	}
	return a
}

func (a *packageAdapter) Kind() manifest.Kind { return a.kind }

// Install runs the install command, pinning the version when the manager
// supports it and the unit requests an exact version.
func (a *packageAdapter) Install(ctx context.Context, req Request) error {
	cmds, spec, err := a.resolve(req.Unit)
	if err != nil {
		return err
	}

	if tap := req.Unit.Options["tap"]; tap != "" && cmds.Tap != "" {
		if _, err := a.exec(ctx, req, expand(cmds.Tap, map[string]string{"tap": tap})); err != nil {
			return fmt.Errorf("adding tap %s: %w", tap, err)
		}
	}

	tmpl := cmds.Install
	vars := map[string]string{"package": spec.Name}
	if version, pinned := spec.Pinned(); pinned && cmds.InstallVersion != "" {
		tmpl = cmds.InstallVersion
		vars["version"] = version
	}
	if strings.TrimSpace(tmpl) == "" {
		return fmt.Errorf("no install command configured for %s", a.kind)
	}
	_, err = a.exec(ctx, req, expand(tmpl, vars))
	return err
}

// IsSatisfied runs the query command. The package counts as installed when
// the query exits 0 and prints at least one version that meets the unit's
// constraint.
func (a *packageAdapter) IsSatisfied(ctx context.Context, req Request) (bool, error) {
	cmds, spec, err := a.resolve(req.Unit)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(cmds.Query) == "" {
		return false, nil
	}

	args := expand(cmds.Query, map[string]string{"package": spec.Name})
	res, err := a.runner.Run(ctx, Command{Args: args})
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			a.logger.Debug("package manager not found", "command", args[0], "unit", req.Unit.Name)
			return false, nil
		}
		return false, err
	}
	if res.ExitCode != 0 {
		return false, nil
	}
	versions := installedVersions(res.Stdout, spec.Name)
	a.logger.Debug("queried installed versions", "unit", req.Unit.Name, "versions", versions)
	return spec.SatisfiedBy(versions...), nil
}

func (a *packageAdapter) resolve(u *manifest.Unit) (PackageCommands, manifest.PackageSpec, error) {
	spec, err := u.PackageSpec()
	if err != nil {
		return PackageCommands{}, manifest.PackageSpec{}, err
	}
	cmds, err := a.commands(u)
	if err != nil {
		return PackageCommands{}, manifest.PackageSpec{}, err
	}
	return cmds, spec, nil
}

func (a *packageAdapter) exec(ctx context.Context, req Request, args []string) (Result, error) {
	a.logger.Debug("running installer", "unit", req.Unit.Name, "command", strings.Join(args, " "))
	return run(ctx, a.runner, Command{Args: args, Output: req.Output})
}

// installedVersions extracts version tokens from query output. The package
// name is removed first so names such as "python3.12" are not read as versions.
func installedVersions(output, pkg string) []string {
	if pkg != "" {
		output = strings.ReplaceAll(output, pkg, " ")
	}
	var out []string
	for _, m := range versionPattern.FindAllStringSubmatch(output, -1) {
		out = append(out, m[1])
	}
	return out
}
