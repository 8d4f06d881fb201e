// Package entity holds the wire-level value types shared across domain
// packages: engine events, invoke parameters, and the handful of records
// persisted verbatim to disk.
package entity

// EngineEventKind discriminates the tagged union a RuntimeAdapter yields.
// The set is closed; decoders must reject anything outside it.
type EngineEventKind string

const (
	EventTextDelta EngineEventKind = "text_delta"
	EventTextFinal EngineEventKind = "text_final"
	EventLogLine   EngineEventKind = "log_line"
	EventToolStart EngineEventKind = "tool_start"
	EventToolEnd   EngineEventKind = "tool_end"
	EventImageData EngineEventKind = "image_data"
	EventError     EngineEventKind = "error"
	EventDone      EngineEventKind = "done"
)

// LogStream names which std stream a log_line event originated from.
type LogStream string

const (
	StreamStdout LogStream = "stdout"
	StreamStderr LogStream = "stderr"
)

// EngineEvent is the single value type flowing through a RuntimeAdapter's
// event channel. Only the fields relevant to Kind are populated; this
// mirrors a tagged union without needing a type switch over concrete
// struct types at every call site.
type EngineEvent struct {
	Kind EngineEventKind

	Text string // text_delta, text_final, error.message

	Stream LogStream // log_line
	Line   string    // log_line

	ToolName  string // tool_start, tool_end
	ToolInput string // tool_start
	ToolOutput string // tool_end, optional

	ImageMediaType string // image_data
	ImageData      []byte // image_data
}

// IsTerminal reports whether this event can legally end a stream.
func (e EngineEvent) IsTerminal() bool {
	return e.Kind == EventDone || e.Kind == EventError || e.Kind == EventTextFinal
}

// Image is an ordered input image attached to an invocation.
type Image struct {
	MediaType string
	Data      []byte
}

// Capability names one of the closed set of adapter capabilities.
type Capability string

const (
	CapStreamingText Capability = "streaming_text"
	CapToolCalls     Capability = "tool_calls"
	CapImages        Capability = "images"
	CapSessions      Capability = "sessions"
)
