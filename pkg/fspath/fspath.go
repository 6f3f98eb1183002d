// SPDX-License-Identifier: MPL-2.0

// Package fspath resolves the host paths that appear in manifests and
// satisfaction checks. Manifests are shared between machines, so paths are
// usually written relative to the home directory ("~/workspace/subhub").
package fspath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HomeFunc returns the current user's home directory.
type HomeFunc func() (string, error)

// Expand resolves a leading "~" or "~/" against the home directory returned
// by home and cleans the result. Paths without a tilde prefix are only
// cleaned. "~user" forms are not supported and are returned unchanged.
func Expand(path string, home HomeFunc) (string, error) {
	if path == "" {
		return "", nil
	}
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path), nil
	}
	if home == nil {
		home = os.UserHomeDir
	}
	dir, err := home()
	if err != nil {
		return "", fmt.Errorf("resolving home directory for %q: %w", path, err)
	}
	if path == "~" {
		return filepath.Clean(dir), nil
	}
	return filepath.Join(dir, filepath.FromSlash(path[2:])), nil
}

// Exists reports whether path (after home expansion) names an existing file
// or directory. Permission errors are reported as errors rather than as
// "missing" so callers do not reinstall over something they cannot see.
func Exists(path string, home HomeFunc) (bool, error) {
	expanded, err := Expand(path, home)
	if err != nil {
		return false, err
	}
	if expanded == "" {
		return false, nil
	}
	_, err = os.Stat(expanded)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("checking %q: %w", expanded, err)
	}
}
