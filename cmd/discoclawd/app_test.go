package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/discoclaw/discoclaw/internal/infrastructure/config"
)

// TestNewAppWiresWithoutChatService exercises the full wiring path with
// no chat backend, the degraded mode a real deployment falls back to
// until a concrete chatservice.ChatService is linked in.
func TestNewAppWiresWithoutChatService(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "workspace", "persona-context"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{DataRoot: dir}
	cfg.Runtime.Primary = "claude"
	cfg.Runtime.Model = "capable"
	cfg.Runtime.MaxConcurrentInvokes = 2
	cfg.Forge.MaxAuditRounds = 3
	cfg.Plan.PhaseAuditFixMax = 2
	cfg.Defer.MaxDelaySeconds = 60
	cfg.Defer.MaxConcurrent = 1
	cfg.Action.Enabled = true

	logger := zap.NewNop()

	app, err := NewApp(cfg, logger, nil)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if app.catalog == nil || app.executor == nil {
		t.Fatal("expected action catalog/executor to be wired")
	}
	if app.forgeOrch == nil || app.planRunner == nil || app.cronSched == nil || app.deferSched == nil {
		t.Fatal("expected forge/plan/cron/defer subsystems to be wired")
	}
	if app.pipeline != nil {
		t.Fatal("expected no message pipeline without a chat service")
	}
}

func TestNewAppStartStopWithoutChatService(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "workspace", "persona-context"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{DataRoot: dir}
	cfg.Runtime.Primary = "claude"
	cfg.Runtime.Model = "capable"

	app, err := NewApp(cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
