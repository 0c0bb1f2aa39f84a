package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mizarwork/mvd/internal/pipeline"
)

const (
	missingJobMessage = "Mizar file path not found in session"
	endMessage        = "Compilation complete"
	errorPrefix       = "ERROR: "
	diagnosticsEvent  = "compileErrors"
	endEvent          = "end"
)

// eventStream writes Server-Sent Events frames and flushes each one.
type eventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newEventStream(w http.ResponseWriter) *eventStream {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &eventStream{w: w, rc: http.NewResponseController(w)}
}

// send writes one frame. Multi-line data is split across data fields.
func (s *eventStream) send(event, data string) error {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if _, err := fmt.Fprint(s.w, b.String()); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *eventStream) sendEvent(ev pipeline.Event) error {
	switch ev.Type {
	case pipeline.EventOutput:
		return s.send("", ev.Content)
	case pipeline.EventErrorOutput, pipeline.EventFatal:
		return s.send("", errorPrefix+ev.Content)
	case pipeline.EventDiagnostics:
		data, err := json.Marshal(ev.Diagnostics)
		if err != nil {
			return err
		}
		return s.send(diagnosticsEvent, string(data))
	case pipeline.EventEnd:
		return s.send(endEvent, endMessage)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}
