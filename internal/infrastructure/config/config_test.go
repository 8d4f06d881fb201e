package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runtime.Primary != "claude" {
		t.Fatalf("expected default primary runtime claude, got %q", cfg.Runtime.Primary)
	}
	if cfg.Forge.MaxAuditRounds != 5 {
		t.Fatalf("expected default forge max audit rounds 5, got %d", cfg.Forge.MaxAuditRounds)
	}
	if cfg.Plan.PhaseAuditFixMax != 3 {
		t.Fatalf("expected default plan phase audit fix max 3, got %d", cfg.Plan.PhaseAuditFixMax)
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)
	t.Setenv("DISCOCLAW_RUNTIME_MODEL", "fast")
	t.Setenv("DISCOCLAW_FORGE_MAX_AUDIT_ROUNDS", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runtime.Model != "fast" {
		t.Fatalf("expected env override of runtime model to fast, got %q", cfg.Runtime.Model)
	}
	if cfg.Forge.MaxAuditRounds != 9 {
		t.Fatalf("expected env override of forge max audit rounds to 9, got %d", cfg.Forge.MaxAuditRounds)
	}
}

func TestLoadLocalFileOverridesGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	globalDir := filepath.Join(home, ".discoclaw")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(globalDir, "config.yaml"), []byte("runtime:\n  model: global-model\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("runtime:\n  model: local-model\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	restore := chdir(t, dir)
	defer restore()

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runtime.Model != "local-model" {
		t.Fatalf("expected project-local config to override global, got %q", cfg.Runtime.Model)
	}
}

func chdirTemp(t *testing.T) {
	t.Helper()
	chdir(t, t.TempDir())
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	return func() { _ = os.Chdir(wd) }
}
