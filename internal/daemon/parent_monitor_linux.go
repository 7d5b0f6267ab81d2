//go:build linux

package daemon

import (
	"fmt"
	"syscall"
)

// setupParentDeathSignal asks the kernel for a redundant, Linux-specific
// early-warning layer on top of the death pipe (fd 2): if the daemon's
// real OS parent dies, prctl(PR_SET_PDEATHSIG) guarantees a SIGTERM
// delivery even if that parent never gets the chance to close its end of
// the pipe (e.g. SIGKILL). Run() treats SIGTERM the same as any other
// shutdown trigger.
func setupParentDeathSignal() error {
	if err := syscall.Prctl(syscall.PR_SET_PDEATHSIG, uintptr(syscall.SIGTERM), 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_SET_PDEATHSIG): %w", err)
	}
	return nil
}
