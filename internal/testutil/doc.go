// SPDX-License-Identifier: MPL-2.0

// Package testutil holds helpers shared by package tests: manifest fixtures
// and FakeHost, a stand-in for the package managers and git that installer
// commands run against.
package testutil
