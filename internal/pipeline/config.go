// Package pipeline runs the ordered tool stages of a compile workflow and
// streams their output as events.
// Stage lists are defined per workflow and may be overridden from YAML.
package pipeline

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/mizarwork/mvd/internal/paths"
)

// Workflow names an independent compile flow.
type Workflow string

const (
	WorkflowSource Workflow = "source"
	WorkflowView   Workflow = "view"
)

// ValidWorkflows is the set of recognized workflows.
var ValidWorkflows = map[Workflow]bool{
	WorkflowSource: true,
	WorkflowView:   true,
}

// ParseWorkflow converts a name to a Workflow.
func ParseWorkflow(s string) (Workflow, error) {
	wf := Workflow(strings.ToLower(strings.TrimSpace(s)))
	if !ValidWorkflows[wf] {
		return "", fmt.Errorf("unknown workflow %q (must be source or view)", s)
	}
	return wf, nil
}

// Placeholders substituted in stage arguments.
const (
	// PlaceholderInput is the absolute input path.
	PlaceholderInput = "{input}"
	// PlaceholderInputRel is the input relative to the workspace root,
	// i.e. TEXT/<basename>.
	PlaceholderInputRel = "{input_rel}"
)

// Definition is the ordered stage list of one workflow.
type Definition struct {
	Workflow Workflow `yaml:"workflow"`
	Stages   []Stage  `yaml:"stages"`
}

// Stage runs one tool. Args are templates expanded one element at a time;
// they are never joined into a command line.
type Stage struct {
	Name   string   `yaml:"name"`
	Tool   string   `yaml:"tool"`
	Args   []string `yaml:"args"`
	Decode bool     `yaml:"decode"`
}

// Expand substitutes the placeholders in the stage arguments.
func (s Stage) Expand(inputPath string) []string {
	r := strings.NewReplacer(
		PlaceholderInput, inputPath,
		PlaceholderInputRel, RelativeInput(inputPath),
	)
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		args[i] = r.Replace(a)
	}
	return args
}

// RelativeInput returns the input path as tools see it from the
// workspace root. It always uses forward slashes.
func RelativeInput(inputPath string) string {
	return path.Join(paths.TextSubdir, filepath.Base(inputPath))
}

// DisplayName returns the stage name, falling back to the tool.
func (s Stage) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Tool
}
