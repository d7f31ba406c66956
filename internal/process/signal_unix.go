//go:build !windows

package process

import (
	"os"
	"syscall"
)

// interrupt delivers SIGINT so the child can shut down on its own terms.
func interrupt(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}

// wasSignaled reports whether the wait status says the child died from a signal.
func wasSignaled(state *os.ProcessState) bool {
	if state == nil {
		return false
	}
	status, ok := state.Sys().(syscall.WaitStatus)
	return ok && status.Signaled()
}
