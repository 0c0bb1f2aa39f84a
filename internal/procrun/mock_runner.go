package procrun

import (
	"context"
	"iter"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// MockScript is the scripted behavior of one tool under MockRunner.
type MockScript struct {
	Stdout []string
	Stderr []string
	// StartErr makes Start fail with a LaunchError wrapping it.
	StartErr error
	// WaitErr is returned from Process.Wait, e.g. a non-zero exit.
	WaitErr error
	// OnStart runs before Start returns; tests use it for tool side
	// effects such as writing an error report.
	OnStart func(c Command)
}

// MockRunner is a test double for ExecRunner that doesn't spawn processes.
// Tools are matched by base name without extension.
type MockRunner struct {
	mu      sync.Mutex
	scripts map[string]MockScript
	calls   []Command
}

// NewMockRunner creates a mock runner with no scripted tools. Unscripted
// tools start successfully and produce no output.
func NewMockRunner() *MockRunner {
	return &MockRunner{scripts: make(map[string]MockScript)}
}

// Script sets the behavior for the named tool.
func (m *MockRunner) Script(tool string, s MockScript) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[tool] = s
}

// Start records the call and returns a process replaying the script.
func (m *MockRunner) Start(ctx context.Context, c Command) (Process, error) {
	name := toolName(c.Path)

	m.mu.Lock()
	m.calls = append(m.calls, Command{
		Path: c.Path,
		Args: slices.Clone(c.Args),
		Dir:  c.Dir,
		Env:  slices.Clone(c.Env),
	})
	s := m.scripts[name]
	m.mu.Unlock()

	if s.StartErr != nil {
		return nil, &LaunchError{Tool: c.Path, Err: s.StartErr}
	}
	if s.OnStart != nil {
		s.OnStart(c)
	}
	return &mockProcess{ctx: ctx, script: s}, nil
}

// Calls returns every command started so far.
func (m *MockRunner) Calls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns how many times the named tool was started.
func (m *MockRunner) CallCount(tool string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if toolName(c.Path) == tool {
			n++
		}
	}
	return n
}

// toolName accepts both separator styles so Windows paths work in tests
// on any host.
func toolName(path string) string {
	base := path[strings.LastIndexAny(path, `/\`)+1:]
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type mockProcess struct {
	ctx    context.Context
	script MockScript
}

func (p *mockProcess) Stdout() iter.Seq[string] { return p.replay(p.script.Stdout) }

func (p *mockProcess) Stderr() iter.Seq[string] { return p.replay(p.script.Stderr) }

func (p *mockProcess) replay(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, l := range lines {
			if p.ctx.Err() != nil || !yield(l) {
				return
			}
		}
	}
}

func (p *mockProcess) Wait() error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	return p.script.WaitErr
}
