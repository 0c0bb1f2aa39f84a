package pipeline

import "github.com/mizarwork/mvd/internal/diagnostics"

// EventType identifies the kind of a pipeline event.
type EventType string

const (
	EventOutput      EventType = "output"
	EventErrorOutput EventType = "error_output"
	EventDiagnostics EventType = "diagnostics"
	EventFatal       EventType = "fatal"
	// EventEnd is emitted exactly once, as the final event of every run.
	EventEnd EventType = "end"
)

// Event is one item of a run's stream.
type Event struct {
	Type        EventType                `json:"type"`
	Content     string                   `json:"content,omitempty"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics,omitempty"`
}
