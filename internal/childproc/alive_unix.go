//go:build !windows

package childproc

import (
	"errors"

	"golang.org/x/sys/unix"
)

// alive probes the OS for pid. EPERM still means the process exists.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
