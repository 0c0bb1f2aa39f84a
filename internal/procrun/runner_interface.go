package procrun

import (
	"context"
	"iter"
)

// Command describes one tool invocation. Args are passed to the tool as
// an argument vector, never joined into a shell string.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env entries are appended to the parent environment.
	Env []string
}

// Process is a started tool whose output streams can be consumed line by
// line. Both sequences block on each pull until a line is available and
// end when the child closes the descriptor.
type Process interface {
	Stdout() iter.Seq[string]
	Stderr() iter.Seq[string]
	// Wait blocks until both streams are drained and the child has exited.
	Wait() error
}

// Runner starts tools.
type Runner interface {
	Start(ctx context.Context, c Command) (Process, error)
}

// Ensure the concrete implementations satisfy Runner at compile time.
var (
	_ Runner = (*ExecRunner)(nil)
	_ Runner = (*MockRunner)(nil)
)
