// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/provisio/provisio/internal/shell"
	"github.com/provisio/provisio/pkg/fspath"
	"github.com/provisio/provisio/pkg/manifest"

	"github.com/joho/godotenv"
)

// scriptAdapter runs raw-script units. The "shell" option selects the
// embedded interpreter or the host /bin/sh; "workdir" sets the working
// directory and "env_file" loads dotenv variables, both relative to the
// manifest that declares the unit.
type scriptAdapter struct {
	defaultShell string
	deps
}

func (a *scriptAdapter) Kind() manifest.Kind { return manifest.KindRawScript }

func (a *scriptAdapter) Install(ctx context.Context, req Request) error {
	u := req.Unit
	dir, err := a.resolvePath(u, u.Options["workdir"])
	if err != nil {
		return err
	}
	env, err := a.loadEnv(u)
	if err != nil {
		return err
	}

	mode := u.Options["shell"]
	if mode == "" {
		mode = a.defaultShell
	}
	a.logger.Debug("running script", "unit", u.Name, "shell", mode, "workdir", dir)

	switch mode {
	case ShellNative:
		_, err = run(ctx, a.runner, Command{Args: []string{"/bin/sh", "-c", u.Script}, Dir: dir, Env: env, Output: req.Output})
		return err
	case ShellVirtual, "":
		code, err := shell.Run(ctx, shell.Script{
			Name:   string(u.Name),
			Body:   u.Script,
			Dir:    dir,
			Env:    env,
			Stdout: req.Output,
			Stderr: req.Output,
		})
		if err != nil {
			return err
		}
		if code != 0 {
			return fmt.Errorf("script exited with code %d", code)
		}
		return nil
	default:
		return fmt.Errorf("unknown shell %q (valid: %s, %s)", mode, ShellVirtual, ShellNative)
	}
}

func (a *scriptAdapter) loadEnv(u *manifest.Unit) ([]string, error) {
	file := u.Options["env_file"]
	if file == "" {
		return nil, nil
	}
	path, err := a.resolvePath(u, file)
	if err != nil {
		return nil, err
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env_file %s: %w", path, err)
	}
	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	return env, nil
}

// resolvePath expands "~/" and anchors relative paths at the manifest's directory.
func (a *scriptAdapter) resolvePath(u *manifest.Unit, p string) (string, error) {
	if p == "" {
		return "", nil
	}
	expanded, err := fspath.Expand(p, a.home)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) && u.Source != "" {
		expanded = filepath.Join(filepath.Dir(u.Source), expanded)
	}
	return expanded, nil
}
