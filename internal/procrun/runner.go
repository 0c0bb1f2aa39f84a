// Package procrun launches external tools and exposes their stdout and
// stderr as line sequences.
package procrun

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/text/encoding"

	"github.com/mizarwork/mvd/internal/tools"
)

// defaultWaitDelay bounds how long Wait keeps pipes open after the child
// has been killed.
const defaultWaitDelay = 5 * time.Second

// LaunchError reports that a tool was found but could not be spawned.
type LaunchError struct {
	Tool string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Tool, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExecRunner runs tools as child processes.
type ExecRunner struct {
	// Encoding is the tool output encoding; nil passes bytes through as UTF-8.
	Encoding  encoding.Encoding
	WaitDelay time.Duration
	Logger    *slog.Logger
}

// NewExecRunner returns a runner decoding child output with the named
// encoding ("" or "auto" selects the platform default).
func NewExecRunner(encodingName string, logger *slog.Logger) (*ExecRunner, error) {
	enc, err := ResolveEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &ExecRunner{Encoding: enc, WaitDelay: defaultWaitDelay, Logger: logger}, nil
}

// Start launches the tool. Cancelling ctx kills the child and everything
// it spawned.
func (r *ExecRunner) Start(ctx context.Context, c Command) (Process, error) {
	cmd, err := r.command(ctx, c)
	if err != nil {
		return nil, &LaunchError{Tool: c.Path, Err: err}
	}
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	cmd.WaitDelay = r.WaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Tool: c.Path, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Tool: c.Path, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Tool: c.Path, Err: err}
	}
	r.log().Debug("tool started", "path", c.Path, "args", c.Args, "pid", cmd.Process.Pid)

	p := &execProcess{
		cmd:    cmd,
		stdout: newLineQueue(),
		stderr: newLineQueue(),
	}
	// Both pipes are drained concurrently so a child blocked writing stderr
	// never stalls while the consumer is still reading stdout.
	p.pumps.Go(func() { pump(stdout, r.Encoding, p.stdout) })
	p.pumps.Go(func() { pump(stderr, r.Encoding, p.stderr) })
	return p, nil
}

// command is the single decision point between direct argument-vector
// execution and the command interpreter.
func (r *ExecRunner) command(ctx context.Context, c Command) (*exec.Cmd, error) {
	if tools.KindOf(c.Path) == tools.KindScript {
		return scriptCommand(ctx, c)
	}
	return exec.CommandContext(ctx, c.Path, c.Args...), nil
}

func (r *ExecRunner) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout *lineQueue
	stderr *lineQueue
	pumps  conc.WaitGroup
}

func (p *execProcess) Stdout() iter.Seq[string] { return p.stdout.All() }

func (p *execProcess) Stderr() iter.Seq[string] { return p.stderr.All() }

func (p *execProcess) Wait() error {
	p.pumps.Wait()
	return p.cmd.Wait()
}
