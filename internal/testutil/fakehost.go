// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/provisio/provisio/internal/backend"
)

// FakeHost implements backend.Runner by simulating Homebrew, RubyGems, pip,
// npm and git with the default command templates. Installs add the package
// to Installed so that later queries see it; git clone creates the target
// directory.
type FakeHost struct {
	mu sync.Mutex
	// Installed maps package name to version.
	Installed map[string]string
	// Fail lists packages whose install exits 1.
	Fail     map[string]bool
	commands [][]string
}

// NewFakeHost returns a host with the given packages already installed at
// version 1.0.0.
func NewFakeHost(installed ...string) *FakeHost {
	h := &FakeHost{Installed: make(map[string]string), Fail: make(map[string]bool)}
	for _, p := range installed {
		h.Installed[p] = "1.0.0"
	}
	return h
}

// Commands returns every command run so far, space-joined.
func (h *FakeHost) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.commands))
	for i, c := range h.commands {
		out[i] = strings.Join(c, " ")
	}
	return out
}

// Installs returns the package of every install command run, in order,
// including installs that failed.
func (h *FakeHost) Installs() []string {
	var out []string
	for _, c := range h.Commands() {
		args := strings.Fields(c)
		if len(args) > 1 && args[1] == "install" {
			out = append(out, installTarget(args))
		}
	}
	return out
}

// Run implements backend.Runner.
func (h *FakeHost) Run(_ context.Context, cmd backend.Command) (backend.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, slices.Clone(cmd.Args))

	args := cmd.Args
	if len(args) < 2 {
		return backend.Result{}, nil
	}
	switch args[1] {
	case "install":
		pkg := installTarget(args)
		if h.Fail[pkg] {
			return backend.Result{ExitCode: 1, Stderr: "Error: No available formula with the name \"" + pkg + "\"."}, nil
		}
		h.Installed[pkg] = installVersion(args)
		return backend.Result{}, nil
	case "list", "show", "ls":
		pkg := args[len(args)-1]
		v, ok := h.Installed[pkg]
		if !ok {
			return backend.Result{ExitCode: 1}, nil
		}
		return backend.Result{Stdout: pkg + " " + v + "\n"}, nil
	case "clone":
		if err := os.MkdirAll(args[len(args)-1], 0o755); err != nil {
			return backend.Result{ExitCode: 128, Stderr: err.Error()}, nil
		}
		return backend.Result{}, nil
	}
	return backend.Result{}, nil
}

// installTarget finds the package argument of an install command, dropping
// flags and "==version" / "@version" suffixes.
func installTarget(args []string) string {
	for i := 2; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			continue
		}
		if i > 2 && args[i-1] == "--version" {
			continue
		}
		if name, _, ok := strings.Cut(a, "=="); ok {
			return name
		}
		if j := strings.LastIndex(a, "@"); j > 0 {
			return a[:j]
		}
		return a
	}
	return ""
}

func installVersion(args []string) string {
	for i, a := range args {
		if a == "--version" && i+1 < len(args) {
			return args[i+1]
		}
		if _, v, ok := strings.Cut(a, "=="); ok {
			return v
		}
		if j := strings.LastIndex(a, "@"); j > 0 && i > 1 {
			return a[j+1:]
		}
	}
	return "1.0.0"
}
