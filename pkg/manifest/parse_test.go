// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

const yamlManifest = `
units:
  - name: aws
    requires: [awscli.managed, aws-vault.cask]
  - name: awscli.managed
    provides: [awscli, aws-cli]
    check:
      in_path: [aws]
  - name: aws-vault.cask
  - name: papertrail.gem
    installs: papertrail == 0.9.14
  - name: dotfiles.repo
    options:
      url: git@example.com:me/dotfiles.git
      path: ~/src/dotfiles
      depth: 1
  - name: tmux-conf.sh
    script: |
      ln -sf ~/src/dotfiles/tmux.conf ~/.tmux.conf
`

func TestParse_YAML(t *testing.T) {
	t.Parallel()

	units, err := Parse([]byte(yamlManifest), "base.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(units) != 6 {
		t.Fatalf("len(units) = %d, want 6", len(units))
	}

	wantKinds := []Kind{KindMeta, KindSystemPackage, KindBinaryCask, KindLanguagePackage, KindVCSCheckout, KindRawScript}
	for i, u := range units {
		if u.Kind != wantKinds[i] {
			t.Errorf("units[%d] (%s) kind = %s, want %s", i, u.Name, u.Kind, wantKinds[i])
		}
		if u.Source != "base.yaml" {
			t.Errorf("units[%d].Source = %q", i, u.Source)
		}
	}

	aws := units[0]
	if len(aws.Requires) != 2 || aws.Requires[0].Ref != "awscli.managed" {
		t.Errorf("aws.Requires = %+v", aws.Requires)
	}
	if got := units[1].EffectiveProvides(); !slices.Equal(got, []CapabilityName{"awscli", "aws-cli"}) {
		t.Errorf("awscli provides = %v", got)
	}
	if got := units[2].EffectiveProvides(); !slices.Equal(got, []CapabilityName{"aws-vault.cask"}) {
		t.Errorf("aws-vault provides = %v", got)
	}
	if units[3].Ecosystem != EcosystemGem {
		t.Errorf("papertrail ecosystem = %q, want gem", units[3].Ecosystem)
	}
	spec, err := units[3].PackageSpec()
	if err != nil {
		t.Fatalf("PackageSpec() error = %v", err)
	}
	if spec.Name != "papertrail" || spec.Version() != "0.9.14" {
		t.Errorf("PackageSpec() = %+v", spec)
	}
	if units[4].Options["depth"] != "1" {
		t.Errorf("depth option = %q, want \"1\"", units[4].Options["depth"])
	}
}

func TestParse_TOMLAndJSONAndCUE(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		data     string
	}{
		{
			name:     "toml",
			filename: "m.toml",
			data: `
[[units]]
name = "node.managed"

[[units]]
name = "web"
requires = ["node.managed", { ref = "base.repo", with = { path = "~/src/web" } }]
`,
		},
		{
			name:     "json",
			filename: "m.json",
			data:     `{"units":[{"name":"node.managed"},{"name":"web","requires":["node.managed",{"ref":"base.repo","with":{"path":"~/src/web"}}]}]}`,
		},
		{
			name:     "cue",
			filename: "m.cue",
			data: `units: [
	{name: "node.managed"},
	{name: "web", requires: ["node.managed", {ref: "base.repo", with: {path: "~/src/web"}}]},
]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			units, err := Parse([]byte(tt.data), tt.filename)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(units) != 2 {
				t.Fatalf("len(units) = %d, want 2", len(units))
			}
			req := units[1].Requires
			if len(req) != 2 {
				t.Fatalf("requires = %+v", req)
			}
			if req[0].Ref != "node.managed" || len(req[0].With) != 0 {
				t.Errorf("requires[0] = %+v", req[0])
			}
			if req[1].Ref != "base.repo" || req[1].With["path"] != "~/src/web" {
				t.Errorf("requires[1] = %+v", req[1])
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr error
		wantMsg string
	}{
		{
			name:    "unknown kind",
			data:    "units:\n  - name: x\n    kind: docker\n",
			wantMsg: "kind",
		},
		{
			name:    "unquoted version",
			data:    "units:\n  - name: ruby.managed\n    options: {version: 1.10}\n",
			wantMsg: "version",
		},
		{
			name:    "unquoted version in requirement",
			data:    "units:\n  - name: app.npm\n    requires: [{ref: node.managed, with: {version: 20}}]\n",
			wantMsg: "requires",
		},
		{
			name:    "unknown field",
			data:    "units:\n  - name: x\n    color: red\n",
			wantMsg: "color",
		},
		{
			name:    "empty name",
			data:    "units:\n  - name: \"  \"\n",
			wantMsg: "name",
		},
		{
			name:    "unknown option",
			data:    "units:\n  - name: node.managed\n    options: {branch: main}\n",
			wantErr: ErrUnknownOption,
		},
		{
			name:    "missing vcs url",
			data:    "units:\n  - name: code.repo\n    options: {path: ~/code}\n",
			wantErr: ErrMissingOption,
		},
		{
			name:    "bad depth",
			data:    "units:\n  - name: code.repo\n    options: {path: ~/code, url: u, depth: zero}\n",
			wantErr: ErrInvalidOption,
		},
		{
			name:    "raw script without script",
			data:    "units:\n  - name: setup.sh\n",
			wantMsg: "requires a script",
		},
		{
			name:    "script syntax",
			data:    "units:\n  - name: setup.sh\n    script: 'if then fi'\n",
			wantMsg: "syntax error",
		},
		{
			name:    "bad constraint",
			data:    "units:\n  - name: rake.gem\n    installs: rake == banana\n",
			wantErr: ErrInvalidPackageSpec,
		},
		{
			name:    "language package without ecosystem",
			data:    "units:\n  - name: rake\n    kind: language-package\n",
			wantErr: ErrInvalidEcosystem,
		},
		{
			name:    "installs on meta",
			data:    "units:\n  - name: group\n    installs: thing\n",
			wantMsg: "does not take installs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.data), "bad.yaml")
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !errors.Is(err, ErrParse) {
				t.Errorf("errors.Is(err, ErrParse) = false for %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("errors.Is(err, %v) = false for %v", tt.wantErr, err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParse_OptionLiterals(t *testing.T) {
	t.Parallel()

	data := `units:
  - name: ruby.managed
    options: {version: "1.10"}
  - name: dotfiles.repo
    options: {url: git@example.com:dotfiles.git, path: ~/.dotfiles, depth: 1, branch: "2.0"}
`
	units, err := Parse([]byte(data), "opts.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		unit int
		key  string
		want string
	}{
		{unit: 0, key: "version", want: "1.10"},
		{unit: 1, key: "depth", want: "1"},
		{unit: 1, key: "branch", want: "2.0"},
	}
	for _, tt := range tests {
		if got := units[tt.unit].Options[tt.key]; got != tt.want {
			t.Errorf("%s Options[%q] = %q, want %q", units[tt.unit].Name, tt.key, got, tt.want)
		}
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("units: []"), "m.ini")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Parse() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestParse_TemplateSkipsCompleteness(t *testing.T) {
	t.Parallel()

	data := "units:\n  - name: base.repo\n    template: true\n    options: {url: git@example.com:base.git}\n"
	units, err := Parse([]byte(data), "t.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !units[0].Template {
		t.Error("Template = false, want true")
	}
}

func TestParse_TemplateReference(t *testing.T) {
	t.Parallel()

	data := `units: [
	{name: "subhub-checkout", kind: "vcs-checkout",
	 options: {url: "git@github.com:mozilla/subhub.git", path: "~/workspace/subhub", branch: "master"}},
	{name: "repository", kind: "vcs-checkout", template: true},
	{name: "mozilla subhub", requires: [
		"node.managed",
		{ref: "repository", with: {path: "~/workspace/fxa", url: "git@github.com:mozilla/fxa.git", branch: "master"}},
	]},
]`
	units, err := Parse([]byte(data), "subhub.cue")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("len(units) = %d, want 3", len(units))
	}
	if units[0].Template || !units[1].Template {
		t.Errorf("Template = %v, %v; want false, true", units[0].Template, units[1].Template)
	}
	if units[2].Kind != KindMeta {
		t.Errorf("Kind = %q, want %q", units[2].Kind, KindMeta)
	}
	req := units[2].Requires
	if len(req) != 2 || req[1].Ref != "repository" {
		t.Fatalf("requires = %+v", req)
	}
	if got := req[1].With["url"]; got != "git@github.com:mozilla/fxa.git" {
		t.Errorf("with.url = %q", got)
	}

	// Without template: true the checkout is a concrete unit missing url and path.
	bare := strings.Replace(data, ", template: true", "", 1)
	if _, err := Parse([]byte(bare), "subhub.cue"); !errors.Is(err, ErrMissingOption) {
		t.Errorf("Parse() error = %v, want ErrMissingOption", err)
	}
}

func TestInferKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     UnitName
		wantKind Kind
		wantEco  Ecosystem
		wantBare string
	}{
		{"node.managed", KindSystemPackage, "", "node"},
		{"aws-vault.cask", KindBinaryCask, "", "aws-vault"},
		{"papertrail.gem", KindLanguagePackage, EcosystemGem, "papertrail"},
		{"httpie.pip", KindLanguagePackage, EcosystemPip, "httpie"},
		{"yarn.npm", KindLanguagePackage, EcosystemNpm, "yarn"},
		{"dotfiles.repo", KindVCSCheckout, "", "dotfiles"},
		{"link.sh", KindRawScript, "", "link"},
		{"aws", KindMeta, "", "aws"},
	}
	for _, tt := range tests {
		kind, eco := InferKind(tt.name)
		if kind != tt.wantKind || eco != tt.wantEco {
			t.Errorf("InferKind(%q) = (%s, %q), want (%s, %q)", tt.name, kind, eco, tt.wantKind, tt.wantEco)
		}
		if got := BareName(tt.name); got != tt.wantBare {
			t.Errorf("BareName(%q) = %q, want %q", tt.name, got, tt.wantBare)
		}
	}
}
