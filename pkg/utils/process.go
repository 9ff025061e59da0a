//go:build unix

package utils

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// KillGroup sends sig to the process group led by pid. A group that is
// already gone is not an error.
func KillGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// KillProcess sends sig to a single process.
func KillProcess(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
