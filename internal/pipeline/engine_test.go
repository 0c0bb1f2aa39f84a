package pipeline

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizarwork/mvd/internal/diagnostics"
	"github.com/mizarwork/mvd/internal/paths"
	"github.com/mizarwork/mvd/internal/procrun"
	"github.com/mizarwork/mvd/internal/testutil"
	"github.com/mizarwork/mvd/internal/tools"
)

// fakeLocator resolves every tool to <root>/<name> unless marked missing.
type fakeLocator struct {
	missing map[string]bool
}

func (l fakeLocator) Locate(root, name string) (string, error) {
	if l.missing[name] {
		return "", &tools.NotFoundError{Name: name, Root: root, Candidates: []string{filepath.Join(root, name)}}
	}
	return filepath.Join(root, name), nil
}

type fixture struct {
	paths  paths.ToolPaths
	input  string
	runner *procrun.MockRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tp := testutil.TestPaths(t)
	testutil.WriteCatalog(t, tp, "# 204\nInvalid type\n# 4\nUnknown functor\n")
	input := filepath.Join(tp.WorkspaceRoot, "TEXT", "abc.miz")
	require.NoError(t, os.WriteFile(input, []byte("environ\nbegin\n"), 0o644))
	return &fixture{paths: tp, input: input, runner: procrun.NewMockRunner()}
}

func (f *fixture) engine(locator ToolLocator) *Engine {
	if locator == nil {
		locator = fakeLocator{}
	}
	return NewEngine(f.paths, nil, locator, f.runner, testutil.DiscardLogger())
}

// writeReport returns an OnStart hook that writes the tool's error report.
func writeReport(t *testing.T, content string) func(procrun.Command) {
	return func(c procrun.Command) {
		var input string
		for _, a := range c.Args {
			if strings.HasSuffix(a, ".miz") {
				input = a
			}
		}
		if !filepath.IsAbs(input) {
			input = filepath.Join(c.Dir, input)
		}
		assert.NoError(t, os.WriteFile(diagnostics.ReportPath(input), []byte(content), 0o644), "writing report")
	}
}

func collect(t *testing.T, seq iter.Seq[Event]) []Event {
	t.Helper()
	events := slices.Collect(seq)
	checkSingleEnd(t, events)
	return events
}

func checkSingleEnd(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events, "expected at least the end event")
	ends := 0
	for _, ev := range events {
		if ev.Type == EventEnd {
			ends++
		}
	}
	assert.Equal(t, 1, ends, "expected exactly one end event")
	assert.Equal(t, EventEnd, events[len(events)-1].Type, "expected end event last")
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestRun_SourceClean(t *testing.T) {
	f := newFixture(t)
	f.runner.Script("miz2prel", procrun.MockScript{
		Stdout: []string{"Processing abc", "done"},
		Stderr: []string{"warning: slow"},
	})

	events := collect(t, f.engine(nil).Run(context.Background(), WorkflowSource, f.input))

	want := []Event{
		{Type: EventOutput, Content: "Processing abc"},
		{Type: EventOutput, Content: "done"},
		{Type: EventErrorOutput, Content: "warning: slow"},
		{Type: EventEnd},
	}
	assert.Equal(t, want, events)

	calls := f.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{f.input}, calls[0].Args)
}

func TestRun_ViewShortCircuitsOnEnvironmentDiagnostics(t *testing.T) {
	f := newFixture(t)
	f.runner.Script("makeenv", procrun.MockScript{
		Stdout:  []string{"Make Environment"},
		OnStart: writeReport(t, "5 10 204\n"),
	})

	events := collect(t, f.engine(nil).Run(context.Background(), WorkflowView, f.input))

	require.Equal(t, []EventType{EventOutput, EventDiagnostics, EventEnd}, types(events))
	assert.Equal(t, []diagnostics.Diagnostic{{Code: 204, Line: 5, Column: 10, Message: "Invalid type"}}, events[1].Diagnostics)
	assert.Zero(t, f.runner.CallCount("verifier"), "verifier must not run after environment diagnostics")
}

func TestRun_ViewRunsVerifier(t *testing.T) {
	f := newFixture(t)
	f.runner.Script("makeenv", procrun.MockScript{Stdout: []string{"env ok"}, OnStart: writeReport(t, "")})
	f.runner.Script("verifier", procrun.MockScript{
		Stdout:  []string{"Verifier", "Parser   [ 12]"},
		OnStart: writeReport(t, "3 1 4\n"),
	})

	events := collect(t, f.engine(nil).Run(context.Background(), WorkflowView, f.input))

	want := []EventType{EventOutput, EventOutput, EventOutput, EventDiagnostics, EventEnd}
	require.Equal(t, want, types(events))
	assert.Equal(t, "Unknown functor", events[3].Diagnostics[0].Message)

	calls := f.runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"-q", "-l", "TEXT/abc.miz"}, calls[1].Args)
	for _, c := range calls {
		assert.Equal(t, f.paths.WorkspaceRoot, c.Dir, "%s dir", c.Path)
		assert.Contains(t, c.Env, "MIZFILES="+f.paths.CatalogRoot)
		assert.True(t, strings.HasPrefix(c.Path, f.paths.ExecutableRoot), "tool path %q not under executable root", c.Path)
	}
}

func TestRun_ToolNotFound(t *testing.T) {
	f := newFixture(t)
	locator := fakeLocator{missing: map[string]bool{"makeenv": true}}

	events := collect(t, f.engine(locator).Run(context.Background(), WorkflowView, f.input))

	require.Equal(t, []EventType{EventErrorOutput, EventEnd}, types(events))
	assert.True(t, strings.HasPrefix(events[0].Content, "Failed to execute makeenv command:"), "unexpected message: %q", events[0].Content)
	assert.Empty(t, f.runner.Calls(), "no process should start when the tool is missing")
}

func TestRun_LaunchFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.Script("miz2prel", procrun.MockScript{StartErr: errors.New("permission denied")})

	events := collect(t, f.engine(nil).Run(context.Background(), WorkflowSource, f.input))

	require.Equal(t, []EventType{EventErrorOutput, EventEnd}, types(events))
	assert.Contains(t, events[0].Content, "Failed to execute miz2prel command:")
	assert.Contains(t, events[0].Content, "permission denied")
}

func TestRun_NonZeroExitWithoutDiagnosticsContinues(t *testing.T) {
	f := newFixture(t)
	f.runner.Script("makeenv", procrun.MockScript{WaitErr: errors.New("exit status 1")})

	events := collect(t, f.engine(nil).Run(context.Background(), WorkflowView, f.input))

	assert.Equal(t, []EventType{EventEnd}, types(events))
	assert.Equal(t, 1, f.runner.CallCount("verifier"), "verifier should run when makeenv left no diagnostics")
}

func TestRun_MissingInput(t *testing.T) {
	f := newFixture(t)

	events := collect(t, f.engine(nil).Run(context.Background(), WorkflowSource, filepath.Join(f.paths.WorkspaceRoot, "TEXT", "gone.miz")))

	require.Equal(t, []EventType{EventFatal, EventEnd}, types(events))
	assert.Empty(t, f.runner.Calls(), "no process should start for a missing input")
}

func TestRun_UnknownWorkflow(t *testing.T) {
	f := newFixture(t)

	events := collect(t, f.engine(nil).Run(context.Background(), Workflow("bogus"), f.input))

	assert.Equal(t, []EventType{EventFatal, EventEnd}, types(events))
}

func TestRun_DecodeFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	// A directory where the report should be cannot be read as a file.
	require.NoError(t, os.Mkdir(diagnostics.ReportPath(f.input), 0o755))

	events := collect(t, f.engine(nil).Run(context.Background(), WorkflowSource, f.input))

	require.Equal(t, []EventType{EventFatal, EventEnd}, types(events))
	assert.Contains(t, events[0].Content, "failed to decode diagnostics")
}

func TestRun_ConsumerStopsEarly(t *testing.T) {
	f := newFixture(t)
	f.runner.Script("makeenv", procrun.MockScript{Stdout: []string{"one", "two", "three"}})

	var seen []Event
	for ev := range f.engine(nil).Run(context.Background(), WorkflowView, f.input) {
		seen = append(seen, ev)
		break
	}

	require.Len(t, seen, 1)
	assert.Equal(t, "one", seen[0].Content)
	assert.Zero(t, f.runner.CallCount("verifier"), "no further stage should start after the consumer stops")
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.runner.Script("miz2prel", procrun.MockScript{Stdout: []string{"never"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	events := collect(t, f.engine(nil).Run(ctx, WorkflowSource, f.input))

	assert.Equal(t, []EventType{EventFatal, EventEnd}, types(events))
}

func TestRun_DoesNotModifyInput(t *testing.T) {
	f := newFixture(t)
	f.runner.Script("makeenv", procrun.MockScript{Stdout: []string{"x"}})
	f.runner.Script("verifier", procrun.MockScript{OnStart: writeReport(t, "1 1 4\n")})
	before, _ := os.ReadFile(f.input)

	collect(t, f.engine(nil).Run(context.Background(), WorkflowView, f.input))

	after, _ := os.ReadFile(f.input)
	assert.Equal(t, string(before), string(after), "input file was modified by the run")
}

func TestRun_CustomDefinition(t *testing.T) {
	f := newFixture(t)
	defs := Merge(map[Workflow]*Definition{
		WorkflowSource: {Stages: []Stage{
			{Tool: "accom", Args: []string{"-q", PlaceholderInputRel}},
			{Tool: "miz2prel", Args: []string{PlaceholderInput}, Decode: true},
		}},
	})
	e := NewEngine(f.paths, defs, fakeLocator{}, f.runner, testutil.DiscardLogger())

	collect(t, e.Run(context.Background(), WorkflowSource, f.input))

	assert.Equal(t, 1, f.runner.CallCount("accom"))
	assert.Equal(t, 1, f.runner.CallCount("miz2prel"))
	def, _ := e.Definition(WorkflowView)
	assert.Len(t, def.Stages, 2, "view workflow should keep its default stages")
}
