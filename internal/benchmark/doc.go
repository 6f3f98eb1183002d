// SPDX-License-Identifier: MPL-2.0

// Package benchmark holds benchmarks for the provisioning hot paths, used
// for PGO profile generation:
//   - manifest parsing and CUE schema validation
//   - capability registration and graph resolution
//   - planning
//   - dry-run execution against a fake host
//
// To generate a profile, run:
//
//	go test -run '^$' -bench . -cpuprofile default.pgo ./internal/benchmark
package benchmark
