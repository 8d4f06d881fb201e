// Package openaicompat adapts any OpenAI-chat-completions-compatible HTTP
// endpoint (OpenAI itself, or OpenRouter) to the runtime.Adapter contract,
// grounded on the teacher's internal/infrastructure/llm/openai SSE client.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/discoclaw/discoclaw/internal/domain/entity"
	"github.com/discoclaw/discoclaw/internal/domain/runtime"
	appErrors "github.com/discoclaw/discoclaw/pkg/errors"
	"go.uber.org/zap"
)

// Config carries the HTTP endpoint shape; Name distinguishes "openai" from
// "openrouter" since both share this transport.
type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	Models  map[string]string // tier alias -> concrete model id
}

type Adapter struct {
	cfg     Config
	logger  *zap.Logger
	client  *http.Client
	breaker *runtime.CircuitBreaker
}

func New(cfg Config, logger *zap.Logger) *Adapter {
	return &Adapter{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "runtime."+cfg.Name)),
		client:  &http.Client{},
		breaker: runtime.NewCircuitBreaker(5, 30*time.Second),
	}
}

func (a *Adapter) ID() string { return a.cfg.Name }

func (a *Adapter) Capabilities() []entity.Capability {
	return []entity.Capability{entity.CapStreamingText, entity.CapToolCalls}
}

func (a *Adapter) IsAvailable() bool { return a.breaker.Allow() }

func (a *Adapter) resolveModel(tier string) string {
	if m, ok := a.cfg.Models[tier]; ok {
		return m
	}
	return tier
}

func (a *Adapter) Invoke(ctx context.Context, params entity.InvokeParams) (<-chan entity.EngineEvent, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if params.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, params.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	reqBody := chatRequest{
		Model:    a.resolveModel(params.Model),
		Stream:   true,
		Messages: []chatMessage{{Role: "user", Content: params.Prompt}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		cancel()
		return nil, appErrors.NewInvalidInputError("failed to encode chat request")
	}

	httpReq, err := http.NewRequestWithContext(runCtx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, appErrors.NewUnavailableError("failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		cancel()
		a.breaker.RecordFailure()
		return nil, &appErrors.RuntimeError{Adapter: a.ID(), ExitCode: -1, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cancel()
		resp.Body.Close()
		a.breaker.RecordFailure()
		return nil, &appErrors.RuntimeError{Adapter: a.ID(), ExitCode: resp.StatusCode, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}

	out := make(chan entity.EngineEvent, 16)
	go func() {
		defer cancel()
		defer resp.Body.Close()
		defer close(out)

		failed := false
		err := readSSE(resp.Body, func(chunk chatStreamChunk) {
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					select {
					case out <- entity.EngineEvent{Kind: entity.EventTextDelta, Text: choice.Delta.Content}:
					case <-runCtx.Done():
					}
				}
			}
		})

		switch {
		case err != nil:
			failed = true
			out <- entity.EngineEvent{Kind: entity.EventError, Text: err.Error()}
		case runCtx.Err() == context.DeadlineExceeded:
			failed = true
			out <- entity.EngineEvent{Kind: entity.EventError, Text: "timeout reached"}
		case runCtx.Err() == context.Canceled:
			failed = true
			out <- entity.EngineEvent{Kind: entity.EventError, Text: "invocation cancelled"}
		default:
			out <- entity.EngineEvent{Kind: entity.EventDone}
		}

		if failed {
			a.breaker.RecordFailure()
		} else {
			a.breaker.RecordSuccess()
		}
	}()

	return out, nil
}
