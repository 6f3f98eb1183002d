// SPDX-License-Identifier: MPL-2.0

// Package issue turns structural failures into user-facing messages: an
// ActionableError carries the failed operation, the resource involved and
// remediation hints, and the catalog holds longer Markdown guidance for each
// class of problem, rendered in the terminal with glamour.
package issue
