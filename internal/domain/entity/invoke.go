package entity

import "time"

// InvokeParams is the common request shape every RuntimeAdapter.Invoke
// accepts, regardless of backend transport.
type InvokeParams struct {
	Prompt string
	// Model is a concrete model id or a tier alias ("fast", "capable")
	// resolved per-adapter to a concrete id.
	Model string
	// Cwd is the working directory exposed to file-touching tools.
	Cwd string
	// AddDirs lists extra roots the adapter exposes to its tools, beyond Cwd.
	AddDirs []string
	// Tools is the subset of the tool catalog the adapter should enable.
	Tools []string
	// Timeout aborts the invocation once elapsed.
	Timeout time.Duration
	// SessionKey is a stable "<purpose>:<model>:<scope>" identifier used by
	// the session manager. Distinct keys never share adapter-native state.
	SessionKey string
	Images     []Image
	// ToolCallGate, when true, causes a destructive tool_start event to
	// abort the stream with an error instead of running the tool.
	ToolCallGate bool
}

// Session is a persisted mapping from a stable SessionKey to an
// adapter-native opaque session id.
type Session struct {
	Key        string    `json:"key"`
	RuntimeID  string    `json:"runtime_id"`
	NativeID   string    `json:"native_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// InFlightReply is one open placeholder message currently being edited.
type InFlightReply struct {
	ChannelID    string `json:"channel_id"`
	MessageID    string `json:"message_id"`
	CreatedAtMs  int64  `json:"created_at_ms"`
	LastEditAtMs int64  `json:"last_edit_at_ms"`
	SessionKey   string `json:"session_key"`
	Purpose      string `json:"purpose"`
}
