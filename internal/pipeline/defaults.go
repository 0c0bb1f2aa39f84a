package pipeline

import "maps"

// DefaultSourceDefinition translates the unit to its prel form:
//
//	miz2prel {input} → decode
func DefaultSourceDefinition() *Definition {
	return &Definition{
		Workflow: WorkflowSource,
		Stages: []Stage{
			{Name: "translate", Tool: "miz2prel", Args: []string{PlaceholderInput}, Decode: true},
		},
	}
}

// DefaultViewDefinition builds the environment and then verifies:
//
//	makeenv {input} → decode → verifier -q -l {input_rel} → decode
//
// The verifier never runs when makeenv reports diagnostics.
func DefaultViewDefinition() *Definition {
	return &Definition{
		Workflow: WorkflowView,
		Stages: []Stage{
			{Name: "environment", Tool: "makeenv", Args: []string{PlaceholderInput}, Decode: true},
			{Name: "verify", Tool: "verifier", Args: []string{"-q", "-l", PlaceholderInputRel}, Decode: true},
		},
	}
}

// DefaultDefinitions returns fresh copies of every built-in definition.
func DefaultDefinitions() map[Workflow]*Definition {
	return map[Workflow]*Definition{
		WorkflowSource: DefaultSourceDefinition(),
		WorkflowView:   DefaultViewDefinition(),
	}
}

// Merge overlays user definitions on the defaults. A workflow present in
// overrides replaces the default stage list entirely.
func Merge(overrides map[Workflow]*Definition) map[Workflow]*Definition {
	defs := DefaultDefinitions()
	for wf, def := range overrides {
		if def == nil {
			continue
		}
		merged := *def
		merged.Workflow = wf
		defs[wf] = &merged
	}
	return defs
}

// Clone returns a deep copy of defs.
func Clone(defs map[Workflow]*Definition) map[Workflow]*Definition {
	out := maps.Clone(defs)
	for wf, def := range out {
		c := *def
		c.Stages = make([]Stage, len(def.Stages))
		for i, s := range def.Stages {
			s.Args = append([]string(nil), s.Args...)
			c.Stages[i] = s
		}
		out[wf] = &c
	}
	return out
}
