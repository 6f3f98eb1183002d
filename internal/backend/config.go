// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"strings"

	"github.com/provisio/provisio/pkg/manifest"
)

const (
	// ShellVirtual runs raw scripts in the embedded interpreter.
	ShellVirtual = "virtual"
	// ShellNative runs raw scripts with the host /bin/sh.
	ShellNative = "native"
)

type (
	// PackageCommands are the command templates for one package manager.
	// Templates are split on whitespace; "{package}", "{version}" and
	// "{tap}" are substituted inside each word.
	PackageCommands struct {
		Install string
		// InstallVersion is used instead of Install when the unit pins a
		// version. Empty means the manager cannot pin and Install is used.
		InstallVersion string
		// Query must exit 0 and print the installed version(s) when the
		// package is present.
		Query string
		// Tap adds a third-party source before installing, when the unit
		// sets the "tap" option.
		Tap string
	}

	// Config holds the installer commands for every adapter.
	Config struct {
		SystemPackage PackageCommands
		BinaryCask    PackageCommands
		Language      map[manifest.Ecosystem]PackageCommands
		// Git is the git executable used by vcs-checkout units.
		Git string
		// Shell is the default raw-script shell, ShellVirtual or ShellNative.
		Shell string
	}
)

// DefaultConfig returns the built-in Homebrew, RubyGems, pip and npm commands.
func DefaultConfig() Config {
	return Config{
		SystemPackage: PackageCommands{
			Install: "brew install {package}",
			Query:   "brew list --versions {package}",
			Tap:     "brew tap {tap}",
		},
		BinaryCask: PackageCommands{
			Install: "brew install --cask {package}",
			Query:   "brew list --cask --versions {package}",
			Tap:     "brew tap {tap}",
		},
		Language: map[manifest.Ecosystem]PackageCommands{
			manifest.EcosystemGem: {
				Install:        "gem install {package}",
				InstallVersion: "gem install {package} --version {version}",
				Query:          "gem list --exact --local {package}",
			},
			manifest.EcosystemPip: {
				Install:        "pip3 install {package}",
				InstallVersion: "pip3 install {package}=={version}",
				Query:          "pip3 show {package}",
			},
			manifest.EcosystemNpm: {
				Install:        "npm install --global {package}",
				InstallVersion: "npm install --global {package}@{version}",
				Query:          "npm ls --global --depth=0 {package}",
			},
		},
		Git:   "git",
		Shell: ShellVirtual,
	}
}

// expand splits tmpl into words and substitutes placeholders.
func expand(tmpl string, vars map[string]string) []string {
	words := strings.Fields(tmpl)
	for i, w := range words {
		for k, v := range vars {
			w = strings.ReplaceAll(w, "{"+k+"}", v)
		}
		words[i] = w
	}
	return words
}
