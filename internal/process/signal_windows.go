//go:build windows

package process

import "os"

// interrupt cannot target a single child with a console interrupt on
// Windows, so it falls back to TerminateProcess.
func interrupt(p *os.Process) error {
	return p.Kill()
}

// wasSignaled is always false on Windows; there are no signal exits.
func wasSignaled(_ *os.ProcessState) bool {
	return false
}
