// Package claudecli adapts the claude-code CLI subprocess to the
// runtime.Adapter contract.
package claudecli

import (
	"context"
	"time"

	"github.com/discoclaw/discoclaw/internal/domain/entity"
	"github.com/discoclaw/discoclaw/internal/domain/runtime"
	infraruntime "github.com/discoclaw/discoclaw/internal/infrastructure/runtimeadapter"
	"go.uber.org/zap"
)

// ModelTiers resolves the spec's tier aliases to concrete claude model ids.
var ModelTiers = map[string]string{
	"fast":    "claude-haiku-4-5",
	"capable": "claude-sonnet-4-5",
}

type Adapter struct {
	logger  *zap.Logger
	binPath string
	breaker *runtime.CircuitBreaker
	mint    runtime.NativeIDFactory
}

func New(logger *zap.Logger, binPath string) *Adapter {
	if binPath == "" {
		binPath = "claude"
	}
	return &Adapter{
		logger:  logger.With(zap.String("component", "runtime.claudecli")),
		binPath: binPath,
		breaker: runtime.NewCircuitBreaker(5, 30*time.Second),
	}
}

func (a *Adapter) ID() string { return "claude" }

func (a *Adapter) Capabilities() []entity.Capability {
	return []entity.Capability{entity.CapStreamingText, entity.CapToolCalls, entity.CapImages, entity.CapSessions}
}

func (a *Adapter) IsAvailable() bool { return a.breaker.Allow() }

func resolveModel(tier string) string {
	if m, ok := ModelTiers[tier]; ok {
		return m
	}
	return tier
}

func buildArgs(params entity.InvokeParams, nativeSessionID string) (string, []string) {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--model", resolveModel(params.Model),
	}
	if nativeSessionID != "" {
		args = append(args, "--resume", nativeSessionID)
	}
	for _, d := range params.AddDirs {
		args = append(args, "--add-dir", d)
	}
	if len(params.Tools) > 0 {
		args = append(args, "--allowed-tools")
		tools := ""
		for i, t := range params.Tools {
			if i > 0 {
				tools += ","
			}
			tools += t
		}
		args = append(args, tools)
	}
	args = append(args, params.Prompt)
	return "claude", args
}

func (a *Adapter) Invoke(ctx context.Context, params entity.InvokeParams) (<-chan entity.EngineEvent, error) {
	spec := func(p entity.InvokeParams, nativeSessionID string) (string, []string) {
		name, args := buildArgs(p, nativeSessionID)
		if name != a.binPath {
			name = a.binPath
		}
		return name, args
	}
	events, err := infraruntime.RunSubprocess(ctx, a.logger, a.ID(), spec, params, "")
	if err != nil {
		a.breaker.RecordFailure()
		return nil, err
	}
	out := make(chan entity.EngineEvent, 16)
	go func() {
		defer close(out)
		saw := false
		for ev := range events {
			out <- ev
			if ev.Kind == entity.EventError {
				saw = true
			}
		}
		if saw {
			a.breaker.RecordFailure()
		} else {
			a.breaker.RecordSuccess()
		}
	}()
	return out, nil
}
