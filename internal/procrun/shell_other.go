//go:build !windows

package procrun

import (
	"context"
	"fmt"
	"os/exec"
)

func scriptCommand(_ context.Context, c Command) (*exec.Cmd, error) {
	return nil, fmt.Errorf("script tool %s needs the Windows command interpreter", c.Path)
}
