// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/provisio/provisio/pkg/fspath"
	"github.com/provisio/provisio/pkg/manifest"
)

// vcsAdapter clones a repository when its target path is absent. An
// existing checkout is never touched.
type vcsAdapter struct {
	git string
	deps
}

func (a *vcsAdapter) Kind() manifest.Kind { return manifest.KindVCSCheckout }

func (a *vcsAdapter) IsSatisfied(_ context.Context, req Request) (bool, error) {
	return fspath.Exists(req.Unit.Options["path"], a.home)
}

func (a *vcsAdapter) Install(ctx context.Context, req Request) error {
	opts := req.Unit.Options
	path, err := fspath.Expand(opts["path"], a.home)
	if err != nil {
		return err
	}
	if path == "" || opts["url"] == "" {
		return fmt.Errorf("vcs-checkout requires url and path options")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", path, err)
	}

	git := a.git
	if git == "" {
		git = "git"
	}
	args := []string{git, "clone"}
	if branch := opts["branch"]; branch != "" {
		args = append(args, "--branch", branch)
	}
	if depth := opts["depth"]; depth != "" {
		args = append(args, "--depth", depth)
	}
	args = append(args, "--", opts["url"], path)

	a.logger.Debug("cloning repository", "unit", req.Unit.Name, "command", strings.Join(args, " "))
	_, err = run(ctx, a.runner, Command{
		Args:   args,
		Env:    []string{"GIT_TERMINAL_PROMPT=0"},
		Output: req.Output,
	})
	return err
}
