package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mizarwork/mvd/internal/diagnostics"
	"github.com/mizarwork/mvd/internal/paths"
	"github.com/mizarwork/mvd/internal/procrun"
)

// CatalogEnvVar tells the tools where the shared catalog lives.
const CatalogEnvVar = "MIZFILES"

// ToolLocator resolves a logical tool name under the executable root.
type ToolLocator interface {
	Locate(root, name string) (string, error)
}

// Engine runs workflow definitions against workspace files.
type Engine struct {
	paths       paths.ToolPaths
	definitions map[Workflow]*Definition
	locator     ToolLocator
	runner      procrun.Runner
	logger      *slog.Logger
}

// NewEngine creates a pipeline engine. A nil defs map selects the
// built-in definitions.
func NewEngine(tp paths.ToolPaths, defs map[Workflow]*Definition, locator ToolLocator, runner procrun.Runner, logger *slog.Logger) *Engine {
	if defs == nil {
		defs = DefaultDefinitions()
	}
	return &Engine{
		paths:       tp,
		definitions: Clone(defs),
		locator:     locator,
		runner:      runner,
		logger:      logger,
	}
}

// Definition returns the stage list for a workflow.
func (e *Engine) Definition(wf Workflow) (*Definition, bool) {
	def, ok := e.definitions[wf]
	return def, ok
}

// Run executes the workflow's stages in order against inputPath and
// streams their output. Stdout lines of a stage precede its stderr
// lines. A stage whose error report is non-empty emits the diagnostics
// and ends the run. The last event is always a single EventEnd.
//
// Breaking out of the loop early cancels the run and kills the live tool.
func (e *Engine) Run(ctx context.Context, wf Workflow, inputPath string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		r := &run{
			engine: e,
			ctx:    ctx,
			cancel: cancel,
			yield:  yield,
			input:  inputPath,
			logger: e.logger.With("workflow", string(wf), "input", filepath.Base(inputPath)),
		}
		r.execute(wf)
		r.emit(Event{Type: EventEnd})
	}
}

// run is the state of a single Run invocation.
type run struct {
	engine  *Engine
	ctx     context.Context
	cancel  context.CancelFunc
	yield   func(Event) bool
	input   string
	logger  *slog.Logger
	stopped bool
}

// emit forwards ev unless the consumer has stopped. A consumer stop
// cancels the run context.
func (r *run) emit(ev Event) bool {
	if r.stopped {
		return false
	}
	if !r.yield(ev) {
		r.stopped = true
		r.cancel()
		return false
	}
	return true
}

func (r *run) fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Error("pipeline failed", "error", msg)
	r.emit(Event{Type: EventFatal, Content: msg})
}

func (r *run) execute(wf Workflow) {
	def, ok := r.engine.definitions[wf]
	if !ok {
		r.fatal("unknown workflow %q", wf)
		return
	}
	info, err := os.Stat(r.input)
	if err != nil {
		r.fatal("input file not found: %v", err)
		return
	}
	if !info.Mode().IsRegular() {
		r.fatal("input is not a regular file: %s", r.input)
		return
	}

	start := time.Now()
	for i, stage := range def.Stages {
		r.logger.Debug("stage starting", "stage", stage.DisplayName(), "index", i)
		if !r.runStage(stage) {
			return
		}
	}
	r.logger.Info("pipeline completed", "stages", len(def.Stages), "elapsed", time.Since(start).Round(time.Millisecond))
}

// runStage reports whether the next stage should run.
func (r *run) runStage(stage Stage) bool {
	tp := r.engine.paths

	toolPath, err := r.engine.locator.Locate(tp.ExecutableRoot, stage.Tool)
	if err != nil {
		r.logger.Warn("tool not found", "tool", stage.Tool, "error", err)
		r.emit(Event{Type: EventErrorOutput, Content: launchFailure(stage.Tool, err)})
		return false
	}

	proc, err := r.engine.runner.Start(r.ctx, procrun.Command{
		Path: toolPath,
		Args: stage.Expand(r.input),
		Dir:  tp.WorkspaceRoot,
		Env:  []string{CatalogEnvVar + "=" + tp.CatalogRoot},
	})
	if err != nil {
		r.logger.Warn("tool failed to start", "tool", stage.Tool, "error", err)
		r.emit(Event{Type: EventErrorOutput, Content: launchFailure(stage.Tool, err)})
		return false
	}

	for line := range proc.Stdout() {
		if !r.emit(Event{Type: EventOutput, Content: line}) {
			break
		}
	}
	if !r.stopped {
		for line := range proc.Stderr() {
			if !r.emit(Event{Type: EventErrorOutput, Content: line}) {
				break
			}
		}
	}

	// Exit status is informational; the error report decides the outcome.
	if err := proc.Wait(); err != nil {
		r.logger.Debug("tool exited with error", "tool", stage.Tool, "error", err)
	}
	if r.stopped {
		return false
	}
	if err := r.ctx.Err(); err != nil {
		r.fatal("compilation cancelled: %v", err)
		return false
	}

	if !stage.Decode {
		return true
	}
	diags, err := diagnostics.Decode(diagnostics.ReportPath(r.input), diagnostics.CatalogPath(tp.CatalogRoot))
	if err != nil {
		r.fatal("failed to decode diagnostics: %v", err)
		return false
	}
	if len(diags) > 0 {
		r.logger.Info("stage reported diagnostics", "stage", stage.DisplayName(), "count", len(diags))
		r.emit(Event{Type: EventDiagnostics, Diagnostics: diags})
		return false
	}
	return true
}

func launchFailure(tool string, err error) string {
	return fmt.Sprintf("Failed to execute %s command: %v", tool, err)
}
