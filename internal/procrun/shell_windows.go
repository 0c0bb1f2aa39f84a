//go:build windows

package procrun

import (
	"context"
	"os"
	"os/exec"
	"syscall"
)

// scriptCommand runs a .bat/.cmd tool through the command interpreter.
// Scripts cannot be started as a direct argument vector on Windows.
func scriptCommand(ctx context.Context, c Command) (*exec.Cmd, error) {
	interpreter := os.Getenv("ComSpec")
	if interpreter == "" {
		interpreter = "cmd.exe"
	}
	cmd := exec.CommandContext(ctx, interpreter)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine: scriptCommandLine(interpreter, c.Path, c.Args),
	}
	return cmd, nil
}
