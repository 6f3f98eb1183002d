// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import (
	"errors"
	"syscall"
)

// watchBroken reports errors after which inotify delivers no more events:
// the watch limit (ENOSPC) or a descriptor limit (EMFILE, ENFILE).
func watchBroken(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
