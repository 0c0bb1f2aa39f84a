package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mizarwork/mvd/internal/pipeline"
	"github.com/mizarwork/mvd/internal/unit"
	"github.com/mizarwork/mvd/internal/workspace"
)

var runWorkflow string

var runCmd = &cobra.Command{
	Use:     "run <file>",
	Short:   "Check one article and print the tool output and diagnostics",
	GroupID: "compile",
	Long: `Stages the file in the workspace and runs a pipeline against it.

The source workflow translates a named article. The file may be a page
holding <mizar NAME>...</mizar> fragments, or a plain .miz file whose
base name is used as the article name.

The view workflow builds the environment and verifies the file content
as-is under a temporary name.

The command exits non-zero when diagnostics were reported or the
pipeline failed.`,
	Example: `  mvd run article.miz
  mvd run --workflow view page.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runWorkflow, "workflow", "w", string(pipeline.WorkflowSource), "Pipeline to run (source|view)")
	rootCmd.AddCommand(runCmd)
}

var errCompileFailed = errors.New("compilation reported problems")

func runRun(cmd *cobra.Command, args []string) error {
	wf, err := pipeline.ParseWorkflow(runWorkflow)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	a, err := loadApp()
	if err != nil {
		return err
	}

	input, err := stageInput(a.workspace, wf, args[0], string(data))
	if err != nil {
		return err
	}

	// Tools run in their own process group and never see the terminal's
	// interrupt.
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := newEventRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr())
	for ev := range a.engine.Run(ctx, wf, input) {
		r.render(ev)
	}
	if r.failed {
		return errCompileFailed
	}
	return nil
}

// stageInput writes content into the workspace the way the matching
// compile endpoint would.
func stageInput(ws *workspace.Manager, wf pipeline.Workflow, name, content string) (string, error) {
	if wf == pipeline.WorkflowView {
		return ws.MaterializeEphemeral(content)
	}

	u, err := unit.Extract(content)
	if errors.Is(err, unit.ErrNoUnit) && strings.EqualFold(filepath.Ext(name), unit.Ext) {
		stem, verr := unit.ValidateStem(filepath.Base(name))
		if verr != nil {
			return "", verr
		}
		u, err = unit.SourceUnit{Stem: stem, Content: content}, nil
	}
	if err != nil {
		return "", err
	}
	return ws.MaterializeNamed(u)
}

// eventRenderer prints pipeline events to a terminal.
type eventRenderer struct {
	out, errOut io.Writer
	failed      bool

	errStyle   lipgloss.Style
	fatalStyle lipgloss.Style
	headStyle  lipgloss.Style
	posStyle   lipgloss.Style
	codeStyle  lipgloss.Style
	mutedStyle lipgloss.Style
}

func newEventRenderer(out, errOut io.Writer) *eventRenderer {
	return &eventRenderer{
		out:        out,
		errOut:     errOut,
		errStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		fatalStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		headStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		posStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		codeStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		mutedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

func (r *eventRenderer) render(ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventOutput:
		fmt.Fprintln(r.out, ev.Content)
	case pipeline.EventErrorOutput:
		fmt.Fprintln(r.errOut, r.errStyle.Render(ev.Content))
	case pipeline.EventFatal:
		r.failed = true
		fmt.Fprintln(r.errOut, r.fatalStyle.Render("fatal: "+ev.Content))
	case pipeline.EventDiagnostics:
		r.failed = true
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, r.headStyle.Render(fmt.Sprintf("%d error(s)", len(ev.Diagnostics))))
		for _, d := range ev.Diagnostics {
			fmt.Fprintf(r.out, "  %s  %s  %s\n",
				r.posStyle.Render(fmt.Sprintf("%d:%d", d.Line, d.Column)),
				r.codeStyle.Render(fmt.Sprintf("*%d", d.Code)),
				d.Message,
			)
		}
	case pipeline.EventEnd:
		fmt.Fprintln(r.out, r.mutedStyle.Render("Compilation complete"))
	}
}
