package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/mizarwork/mvd/internal/pipeline"
	"github.com/mizarwork/mvd/internal/unit"
)

const defaultCombinedName = "combined_file.miz"

// reply is the JSON envelope of every non-streaming response.
type reply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type combinedFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func writeJSON(w http.ResponseWriter, status int, v reply) {
	if v.Data == nil {
		v.Data = ""
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requestBody carries the fields the client posts, either form encoded
// or as JSON.
type requestBody struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

func readBody(w http.ResponseWriter, r *http.Request) (requestBody, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body requestBody
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return body, err
		}
		return body, nil
	}
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return body, err
	}
	body.Content = r.PostFormValue("content")
	body.Filename = r.PostFormValue("filename")
	return body, nil
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request, wf pipeline.Workflow) {
	sid := sessionID(r.Context())
	log := s.logger.With("session", sid, "workflow", string(wf))

	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, reply{Message: "invalid request body: " + err.Error()})
		return
	}

	var path string
	switch wf {
	case pipeline.WorkflowSource:
		u, err := unit.Extract(body.Content)
		if err != nil {
			var verr *unit.ValidationError
			if errors.Is(err, unit.ErrNoUnit) || errors.As(err, &verr) {
				writeJSON(w, http.StatusBadRequest, reply{Message: err.Error()})
				return
			}
			writeJSON(w, http.StatusInternalServerError, reply{Message: err.Error()})
			return
		}
		path, err = s.workspace.MaterializeNamed(u)
		if err != nil {
			log.Error("failed to materialize unit", "error", err)
			writeJSON(w, http.StatusInternalServerError, reply{Message: err.Error()})
			return
		}
	case pipeline.WorkflowView:
		path, err = s.workspace.MaterializeEphemeral(body.Content)
		if err != nil {
			log.Error("failed to materialize content", "error", err)
			writeJSON(w, http.StatusInternalServerError, reply{Message: err.Error()})
			return
		}
	}

	if err := s.sessions.Put(sid, string(wf), path); err != nil {
		log.Warn("failed to persist session job", "error", err)
	}
	log.Info("compile staged", "path", path)
	writeJSON(w, http.StatusOK, reply{Success: true, Message: "Mizar content processed successfully"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, wf pipeline.Workflow) {
	sid := sessionID(r.Context())
	log := s.logger.With("session", sid, "workflow", string(wf))

	stream := newEventStream(w)
	path, ok := s.sessions.Take(sid, string(wf))
	if !ok {
		if err := stream.send("", missingJobMessage); err != nil {
			log.Debug("client went away", "error", err)
		}
		return
	}

	log.Info("stream started", "path", path)
	for ev := range s.pipeline.Run(r.Context(), wf, path) {
		if err := stream.sendEvent(ev); err != nil {
			// Leaving the loop cancels the run and kills the tool.
			log.Info("stream aborted", "error", err)
			return
		}
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	errs := s.workspace.ClearAll(r.Context())
	if len(errs) == 0 {
		writeJSON(w, http.StatusOK, reply{Success: true, Message: "Temporary files cleared successfully"})
		return
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	writeJSON(w, http.StatusOK, reply{Message: "Some files could not be deleted", Data: msgs})
}

// handleCombine echoes the combined content back for download; nothing is
// written on the server.
func (s *Server) handleCombine(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, reply{Message: "invalid request body: " + err.Error()})
		return
	}
	if body.Content == "" {
		writeJSON(w, http.StatusBadRequest, reply{Message: "Content is empty, no file created"})
		return
	}
	if body.Filename == "" {
		body.Filename = defaultCombinedName
	}
	writeJSON(w, http.StatusOK, reply{
		Success: true,
		Message: "File created successfully",
		Data:    combinedFile{Filename: body.Filename, Content: body.Content},
	})
}
