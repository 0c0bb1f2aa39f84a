//go:build windows

package session

import "os"

// processAlive relies on FindProcess opening a handle, which fails once
// the process has exited.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	proc.Release()
	return true
}
