package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mizarwork/mvd/internal/pipeline"
)

// command is the closed set of request kinds. Both the REST routes and
// the legacy ?call= endpoint resolve to one of these before dispatch.
type command interface {
	isCommand()
}

type compileCommand struct{ workflow pipeline.Workflow }

type streamCommand struct{ workflow pipeline.Workflow }

type clearCommand struct{}

type combineCommand struct{}

func (compileCommand) isCommand() {}
func (streamCommand) isCommand()  {}
func (clearCommand) isCommand()   {}
func (combineCommand) isCommand() {}

var legacyCalls = map[string]command{
	"source_compile":       compileCommand{workflow: pipeline.WorkflowSource},
	"source_sse":           streamCommand{workflow: pipeline.WorkflowSource},
	"view_compile":         compileCommand{workflow: pipeline.WorkflowView},
	"view_sse":             streamCommand{workflow: pipeline.WorkflowView},
	"clear_temp_files":     clearCommand{},
	"create_combined_file": combineCommand{},
}

// parseCall resolves a legacy call name.
func parseCall(name string) (command, error) {
	cmd, ok := legacyCalls[name]
	if !ok {
		return nil, fmt.Errorf("unknown call %q", name)
	}
	return cmd, nil
}

func (s *Server) handle(cmd command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.dispatch(w, r, cmd)
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, cmd command) {
	switch c := cmd.(type) {
	case compileCommand:
		s.handleCompile(w, r, c.workflow)
	case streamCommand:
		s.handleStream(w, r, c.workflow)
	case clearCommand:
		s.handleClear(w, r)
	case combineCommand:
		s.handleCombine(w, r)
	default:
		panic(fmt.Sprintf("unhandled command %T", cmd))
	}
}

func (s *Server) handleStreamRoute(w http.ResponseWriter, r *http.Request) {
	wf, err := pipeline.ParseWorkflow(chi.URLParam(r, "workflow"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, reply{Message: err.Error()})
		return
	}
	s.dispatch(w, r, streamCommand{workflow: wf})
}

func (s *Server) handleLegacy(w http.ResponseWriter, r *http.Request) {
	cmd, err := parseCall(r.URL.Query().Get("call"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, reply{Message: err.Error()})
		return
	}
	if _, isStream := cmd.(streamCommand); !isStream && r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, reply{Message: "method not allowed"})
		return
	}
	s.dispatch(w, r, cmd)
}
