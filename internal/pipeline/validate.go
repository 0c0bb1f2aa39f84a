package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

// ValidationError describes a single validation problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) String() string {
	return e.Field + ": " + e.Message
}

// Validate checks a set of definitions and returns all problems found.
func Validate(defs map[Workflow]*Definition) []ValidationError {
	var errs []ValidationError

	for wf, def := range defs {
		prefix := fmt.Sprintf("pipelines.%s", wf)

		if !ValidWorkflows[wf] {
			errs = append(errs, ValidationError{
				Field:   prefix,
				Message: fmt.Sprintf("unknown workflow %q (must be source or view)", wf),
			})
			continue
		}
		if def == nil || len(def.Stages) == 0 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".stages",
				Message: "at least one stage is required",
			})
			continue
		}

		seen := make(map[string]bool)
		for i, stage := range def.Stages {
			errs = append(errs, validateStage(fmt.Sprintf("%s.stages[%d]", prefix, i), stage)...)

			name := stage.DisplayName()
			if name != "" && seen[name] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.stages[%d].name", prefix, i),
					Message: fmt.Sprintf("duplicate stage name %q", name),
				})
			}
			seen[name] = true
		}
	}

	return errs
}

func validateStage(prefix string, stage Stage) []ValidationError {
	var errs []ValidationError

	// Tools are logical names resolved by the locator, never paths.
	switch {
	case stage.Tool == "":
		errs = append(errs, ValidationError{
			Field:   prefix + ".tool",
			Message: "tool is required",
		})
	case strings.ContainsAny(stage.Tool, `/\`) || stage.Tool == "." || stage.Tool == "..":
		errs = append(errs, ValidationError{
			Field:   prefix + ".tool",
			Message: fmt.Sprintf("tool %q must be a name, not a path", stage.Tool),
		})
	}

	for i, arg := range stage.Args {
		for _, ph := range placeholderRe.FindAllString(arg, -1) {
			if ph != PlaceholderInput && ph != PlaceholderInputRel {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.args[%d]", prefix, i),
					Message: fmt.Sprintf("unknown placeholder %s (must be %s or %s)", ph, PlaceholderInput, PlaceholderInputRel),
				})
			}
		}
	}

	return errs
}
