//go:build !windows

package session

import (
	"os"
	"syscall"
)

// processAlive uses signal 0, which checks existence without delivering
// anything.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
