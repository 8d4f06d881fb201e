// Package geminicli adapts the Gemini CLI subprocess to the
// runtime.Adapter contract.
package geminicli

import (
	"context"
	"time"

	"github.com/discoclaw/discoclaw/internal/domain/entity"
	"github.com/discoclaw/discoclaw/internal/domain/runtime"
	infraruntime "github.com/discoclaw/discoclaw/internal/infrastructure/runtimeadapter"
	"go.uber.org/zap"
)

var ModelTiers = map[string]string{
	"fast":    "gemini-2.5-flash",
	"capable": "gemini-2.5-pro",
}

type Adapter struct {
	logger  *zap.Logger
	binPath string
	breaker *runtime.CircuitBreaker
}

func New(logger *zap.Logger, binPath string) *Adapter {
	if binPath == "" {
		binPath = "gemini"
	}
	return &Adapter{
		logger:  logger.With(zap.String("component", "runtime.geminicli")),
		binPath: binPath,
		breaker: runtime.NewCircuitBreaker(5, 30*time.Second),
	}
}

func (a *Adapter) ID() string { return "gemini" }

func (a *Adapter) Capabilities() []entity.Capability {
	return []entity.Capability{entity.CapStreamingText, entity.CapToolCalls, entity.CapImages}
}

func (a *Adapter) IsAvailable() bool { return a.breaker.Allow() }

func resolveModel(tier string) string {
	if m, ok := ModelTiers[tier]; ok {
		return m
	}
	return tier
}

func (a *Adapter) Invoke(ctx context.Context, params entity.InvokeParams) (<-chan entity.EngineEvent, error) {
	spec := func(p entity.InvokeParams, nativeSessionID string) (string, []string) {
		args := []string{
			"--output-format", "stream-json",
			"--model", resolveModel(p.Model),
		}
		for _, d := range p.AddDirs {
			args = append(args, "--include-dir", d)
		}
		args = append(args, "--prompt", p.Prompt)
		return a.binPath, args
	}

	events, err := infraruntime.RunSubprocess(ctx, a.logger, a.ID(), spec, params, "")
	if err != nil {
		a.breaker.RecordFailure()
		return nil, err
	}
	out := make(chan entity.EngineEvent, 16)
	go func() {
		defer close(out)
		failed := false
		for ev := range events {
			out <- ev
			if ev.Kind == entity.EventError {
				failed = true
			}
		}
		if failed {
			a.breaker.RecordFailure()
		} else {
			a.breaker.RecordSuccess()
		}
	}()
	return out, nil
}
