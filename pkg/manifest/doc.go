// SPDX-License-Identifier: MPL-2.0

// Package manifest defines the dependency unit schema and the declaration
// store that holds every unit loaded for a run.
//
// A manifest is a list of units. Each unit names what it requires, which
// capabilities it provides, how to tell whether it is already present on the
// host, and what to do when it is not:
//
//	units: [
//		{name: "gnupg.managed", provides: ["gnupg"], check: in_path: ["gpg"]},
//		{name: "papertrail.gem", installs: "papertrail == 0.9.14"},
//		{name: "repository", kind: "vcs-checkout", template: true},
//		{name: "mozilla subhub", requires: [
//			"gnupg.managed",
//			{ref: "repository", with: {url: "git@github.com:mozilla/subhub.git", path: "~/workspace/subhub"}},
//		]},
//	]
//
// Manifests may be written in CUE, YAML, or TOML. Every format is validated
// against the same embedded CUE schema, unknown fields and unknown option keys
// are rejected, and each unit records its declaration index so later stages
// can order independent units deterministically.
package manifest
