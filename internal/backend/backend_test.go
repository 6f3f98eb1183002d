// SPDX-License-Identifier: MPL-2.0

package backend

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/provisio/provisio/pkg/manifest"
)

// fakeRunner records commands and answers them from a table keyed by the
// joined command line.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []Command
	results map[string]Result
	errs    map[string]error
}

func (f *fakeRunner) Run(_ context.Context, c Command) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	key := strings.Join(c.Args, " ")
	if err, ok := f.errs[key]; ok {
		return Result{}, err
	}
	return f.results[key], nil
}

func (f *fakeRunner) commandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c.Args, " ")
	}
	return out
}

func mustParseUnit(t *testing.T, yaml string) *manifest.Unit {
	t.Helper()
	units, err := manifest.Parse([]byte(yaml), filepath.Join(t.TempDir(), "m.yaml"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return units[0]
}

func TestSet_ClosedOverKinds(t *testing.T) {
	t.Parallel()
	s := NewSet(DefaultConfig(), WithRunner(&fakeRunner{}))
	for _, k := range manifest.Kinds() {
		a, err := s.For(k)
		if err != nil {
			t.Errorf("For(%s) error = %v", k, err)
			continue
		}
		if a.Kind() != k {
			t.Errorf("For(%s).Kind() = %s", k, a.Kind())
		}
	}
	if _, err := s.For("docker"); !errors.Is(err, ErrNoAdapter) {
		t.Errorf("For(docker) error = %v, want ErrNoAdapter", err)
	}
}

func TestPackageAdapter_Install(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "system package",
			yaml: "units:\n  - name: node.managed\n",
			want: []string{"brew install node"},
		},
		{
			name: "system package with tap",
			yaml: "units:\n  - name: terraform.managed\n    options: {tap: hashicorp/tap}\n",
			want: []string{"brew tap hashicorp/tap", "brew install terraform"},
		},
		{
			name: "cask",
			yaml: "units:\n  - name: aws-vault.cask\n",
			want: []string{"brew install --cask aws-vault"},
		},
		{
			name: "gem pinned",
			yaml: "units:\n  - name: papertrail.gem\n    installs: papertrail == 0.9.14\n",
			want: []string{"gem install papertrail --version 0.9.14"},
		},
		{
			name: "pip range installs latest",
			yaml: "units:\n  - name: httpie.pip\n    installs: httpie >= 3.0\n",
			want: []string{"pip3 install httpie"},
		},
		{
			name: "npm version option",
			yaml: "units:\n  - name: yarn.npm\n    options: {version: \"1.22.19\"}\n",
			want: []string{"npm install --global yarn@1.22.19"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{}
			u := mustParseUnit(t, tt.yaml)
			a, err := NewSet(DefaultConfig(), WithRunner(runner)).For(u.Kind)
			if err != nil {
				t.Fatal(err)
			}
			if err := a.Install(t.Context(), Request{Unit: u}); err != nil {
				t.Fatalf("Install() error = %v", err)
			}
			if got := runner.commandLines(); !slices.Equal(got, tt.want) {
				t.Errorf("commands = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPackageAdapter_InstallFailure(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{results: map[string]Result{
		"brew install node": {ExitCode: 1, Stderr: "Warning: downloading\nError: no bottle available"},
	}}
	u := mustParseUnit(t, "units:\n  - name: node.managed\n")
	a, _ := NewSet(DefaultConfig(), WithRunner(runner)).For(u.Kind)

	err := a.Install(t.Context(), Request{Unit: u})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Install() error = %v, want *CommandError", err)
	}
	if cmdErr.ExitCode != 1 || !strings.Contains(err.Error(), "no bottle available") {
		t.Errorf("CommandError = %v", err)
	}
}

func TestPackageAdapter_IsSatisfied(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		results map[string]Result
		errs    map[string]error
		want    bool
	}{
		{
			name:    "brew installed",
			yaml:    "units:\n  - name: node.managed\n",
			results: map[string]Result{"brew list --versions node": {Stdout: "node 20.1.0 19.0.0\n"}},
			want:    true,
		},
		{
			name:    "brew missing",
			yaml:    "units:\n  - name: node.managed\n",
			results: map[string]Result{"brew list --versions node": {ExitCode: 1}},
			want:    false,
		},
		{
			name:    "gem pinned version present",
			yaml:    "units:\n  - name: papertrail.gem\n    installs: papertrail == 0.9.14\n",
			results: map[string]Result{"gem list --exact --local papertrail": {Stdout: "\n*** LOCAL GEMS ***\n\npapertrail (0.9.18, 0.9.14)\n"}},
			want:    true,
		},
		{
			name:    "gem pinned version absent",
			yaml:    "units:\n  - name: papertrail.gem\n    installs: papertrail == 0.9.14\n",
			results: map[string]Result{"gem list --exact --local papertrail": {Stdout: "papertrail (0.9.18)\n"}},
			want:    false,
		},
		{
			name:    "gem not installed prints header only",
			yaml:    "units:\n  - name: rake.gem\n",
			results: map[string]Result{"gem list --exact --local rake": {Stdout: "\n*** LOCAL GEMS ***\n\n"}},
			want:    false,
		},
		{
			name:    "pip show with constraint",
			yaml:    "units:\n  - name: httpie.pip\n    installs: httpie >= 3.0\n",
			results: map[string]Result{"pip3 show httpie": {Stdout: "Name: httpie\nVersion: 3.2.2\nLocation: /usr/lib/python3.11/site-packages\n"}},
			want:    true,
		},
		{
			name:    "npm global",
			yaml:    "units:\n  - name: yarn.npm\n",
			results: map[string]Result{"npm ls --global --depth=0 yarn": {Stdout: "/usr/local/lib\n└── yarn@1.22.19\n"}},
			want:    true,
		},
		{
			name: "manager not installed",
			yaml: "units:\n  - name: node.managed\n",
			errs: map[string]error{"brew list --versions node": &exec.Error{Name: "brew", Err: exec.ErrNotFound}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{results: tt.results, errs: tt.errs}
			u := mustParseUnit(t, tt.yaml)
			a, _ := NewSet(DefaultConfig(), WithRunner(runner)).For(u.Kind)

			got, err := a.(SatisfactionChecker).IsSatisfied(t.Context(), Request{Unit: u})
			if err != nil {
				t.Fatalf("IsSatisfied() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsSatisfied() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVCSAdapter(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	runner := &fakeRunner{}
	s := NewSet(DefaultConfig(), WithRunner(runner), WithHome(func() (string, error) { return home, nil }))
	a, _ := s.For(manifest.KindVCSCheckout)

	u := mustParseUnit(t, `
units:
  - name: subhub.repo
    options: {url: "git@github.com:mozilla/subhub.git", path: ~/workspace/subhub, branch: master, depth: 1}
`)
	req := Request{Unit: u}

	ok, err := a.(SatisfactionChecker).IsSatisfied(t.Context(), req)
	if err != nil || ok {
		t.Fatalf("IsSatisfied() before clone = %v, %v", ok, err)
	}
	if err := a.Install(t.Context(), req); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	target := filepath.Join(home, "workspace", "subhub")
	want := []string{"git clone --branch master --depth 1 -- git@github.com:mozilla/subhub.git " + target}
	if got := runner.commandLines(); !slices.Equal(got, want) {
		t.Errorf("commands = %q, want %q", got, want)
	}
	if !slices.Contains(runner.calls[0].Env, "GIT_TERMINAL_PROMPT=0") {
		t.Errorf("Env = %v", runner.calls[0].Env)
	}
	if info, err := os.Stat(filepath.Dir(target)); err != nil || !info.IsDir() {
		t.Errorf("parent directory not created: %v", err)
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if ok, _ := a.(SatisfactionChecker).IsSatisfied(t.Context(), req); !ok {
		t.Error("IsSatisfied() after clone = false")
	}
}

func TestScriptAdapter_Virtual(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "m.yaml")
	if err := os.WriteFile(filepath.Join(dir, "tool.env"), []byte("TOOL_NAME=provisio\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "work"), 0o755); err != nil {
		t.Fatal(err)
	}

	units, err := manifest.Parse([]byte(`
units:
  - name: marker.sh
    options: {workdir: work, env_file: tool.env}
    script: echo "$TOOL_NAME" > marker.txt
`), manifestPath)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := NewSet(DefaultConfig(), WithRunner(&fakeRunner{})).For(manifest.KindRawScript)
	if err := a.Install(t.Context(), Request{Unit: units[0]}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "work", "marker.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(got)) != "provisio" {
		t.Errorf("marker = %q", got)
	}
}

func TestScriptAdapter_FailureAndNative(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	a, _ := NewSet(DefaultConfig(), WithRunner(runner)).For(manifest.KindRawScript)

	failing := mustParseUnit(t, "units:\n  - name: fail.sh\n    script: exit 4\n")
	if err := a.Install(t.Context(), Request{Unit: failing}); err == nil || !strings.Contains(err.Error(), "code 4") {
		t.Errorf("Install() error = %v, want exit code 4", err)
	}

	native := mustParseUnit(t, "units:\n  - name: native.sh\n    options: {shell: native}\n    script: echo hi\n")
	if err := a.Install(t.Context(), Request{Unit: native}); err != nil {
		t.Fatalf("Install(native) error = %v", err)
	}
	if got := runner.commandLines(); !slices.Equal(got, []string{"/bin/sh -c echo hi"}) {
		t.Errorf("commands = %q", got)
	}
}

func TestMetaAdapter(t *testing.T) {
	t.Parallel()
	a, _ := NewSet(DefaultConfig()).For(manifest.KindMeta)
	u := &manifest.Unit{Name: "aws", Kind: manifest.KindMeta}
	if err := a.Install(t.Context(), Request{Unit: u}); err != nil {
		t.Errorf("Install() error = %v", err)
	}
	if ok, _ := a.(SatisfactionChecker).IsSatisfied(t.Context(), Request{Unit: u}); !ok {
		t.Error("meta unit should be satisfied")
	}
}

func TestInstallError_Unwrap(t *testing.T) {
	t.Parallel()
	cause := &CommandError{Command: []string{"brew", "install", "x"}, ExitCode: 2}
	err := error(&InstallError{Unit: "x.managed", Kind: manifest.KindSystemPackage, Err: cause})
	if !errors.Is(err, ErrInstall) {
		t.Error("errors.Is(err, ErrInstall) = false")
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ExitCode != 2 {
		t.Errorf("errors.As CommandError = %v", cmdErr)
	}
}
