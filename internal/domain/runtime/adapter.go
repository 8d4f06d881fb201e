// Package runtime defines the RuntimeAdapter contract, the adapter
// registry, the shared concurrency limiter, and the session manager —
// generalizing the teacher's internal/infrastructure/llm.Provider /
// Router / CircuitBreaker trio to the spec's lazy-event-stream contract.
package runtime

import (
	"context"

	"github.com/discoclaw/discoclaw/internal/domain/entity"
)

// Adapter is a polymorphic LM backend. Invoke must be finite,
// not-restartable, and must emit a terminal event (done, error, or a
// terminating text_final) on every code path, including cancellation.
type Adapter interface {
	// ID is the closed-set backend identifier (claude, openai, openrouter,
	// codex, gemini).
	ID() string
	Capabilities() []entity.Capability
	// Invoke starts the invocation and returns a channel of EngineEvent.
	// The channel is closed after the terminal event is sent.
	Invoke(ctx context.Context, params entity.InvokeParams) (<-chan entity.EngineEvent, error)
	// IsAvailable reports the adapter's circuit-breaker health, a signal
	// surfaced to callers/health reports; it is never used to fail over
	// automatically.
	IsAvailable() bool
}
