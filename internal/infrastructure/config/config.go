// Package config loads Discoclaw's layered configuration: built-in
// defaults, then the global file at ~/.discoclaw/config.yaml, then a
// project-local ./config.yaml, then DISCOCLAW_* environment variables,
// each layer overriding the one before it. Grounded on the teacher's
// internal/infrastructure/config.Load (global-dir then local-dir viper
// merge, then SetEnvPrefix/AutomaticEnv), generalized from NGOClaw's
// gateway/telegram/agent sections to Discoclaw's runtime/action/forge/
// plan/cron/defer sections.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the flat, validated configuration every subsystem reads from
// at startup. Nothing downstream re-reads environment variables or files
// directly; config is the sole external-state collaborator.
type Config struct {
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Action   ActionConfig   `mapstructure:"action"`
	Context  ContextConfig  `mapstructure:"context"`
	Forge    ForgeConfig    `mapstructure:"forge"`
	Plan     PlanConfig     `mapstructure:"plan"`
	Cron     CronConfig     `mapstructure:"cron"`
	Defer    DeferConfig    `mapstructure:"defer"`
	Reaction ReactionConfig `mapstructure:"reaction"`
	Allow    AllowConfig    `mapstructure:"allow"`
	Log      LogConfig      `mapstructure:"log"`
	DataRoot string         `mapstructure:"data_root"`
}

// RuntimeConfig selects and bounds the LM runtime adapter.
type RuntimeConfig struct {
	Primary               string              `mapstructure:"primary"` // claude, openai, openrouter, codex, gemini
	Model                 string              `mapstructure:"model"`   // concrete id or tier alias
	TimeoutMS             int                 `mapstructure:"timeout_ms"`
	MaxConcurrentInvokes  int                 `mapstructure:"max_concurrent_invocations"`
	Providers             []ProviderConfig    `mapstructure:"providers"`
}

// ProviderConfig configures one Go-native adapter backend, mirroring the
// teacher's AgentConfig.Providers entry.
type ProviderConfig struct {
	Name    string   `mapstructure:"name"`
	BaseURL string   `mapstructure:"base_url"`
	APIKey  string   `mapstructure:"api_key"`
	Models  []string `mapstructure:"models"`
}

// ActionConfig toggles the action category flags.
type ActionConfig struct {
	Enabled    bool            `mapstructure:"enabled"`
	Categories map[string]bool `mapstructure:"categories"`
}

// ContextConfig bounds context-assembly section sizes, per spec §4.5.
type ContextConfig struct {
	MessageHistoryBudget     int `mapstructure:"message_history_budget"`
	DurableInjectMaxChars    int `mapstructure:"durable_inject_max_chars"`
	ShortTermInjectMaxChars  int `mapstructure:"shortterm_inject_max_chars"`
	ReplyChainAndPinsBudget  int `mapstructure:"reply_chain_and_pins_budget"`
	AttachmentBudget         int `mapstructure:"attachment_budget"`
}

// ForgeConfig bounds the drafter/auditor orchestrator.
type ForgeConfig struct {
	MaxAuditRounds int `mapstructure:"max_audit_rounds"`
}

// PlanConfig bounds the plan phase engine.
type PlanConfig struct {
	PhaseAuditFixMax     int `mapstructure:"phase_audit_fix_max"`
	PhaseMaxContextFiles int `mapstructure:"phase_max_context_files"`
}

// CronConfig bounds the cron scheduler.
type CronConfig struct {
	MaxJitterSeconds   int           `mapstructure:"max_jitter_seconds"`
	HeartbeatThreshold time.Duration `mapstructure:"heartbeat_threshold"`
}

// DeferConfig bounds the deferred-prompt scheduler.
type DeferConfig struct {
	MaxDelaySeconds int `mapstructure:"max_delay_seconds"`
	MaxConcurrent   int `mapstructure:"max_concurrent"`
}

// ReactionConfig configures reaction-triggered handlers.
type ReactionConfig struct {
	MaxAgeHours    int    `mapstructure:"max_age_hours"`
	Handler        string `mapstructure:"handler"`
	RemoveHandler  string `mapstructure:"remove_handler"`
}

// AllowConfig carries the comma/space-separated snowflake allowlists.
type AllowConfig struct {
	Users            string `mapstructure:"users"`
	RestrictChannels string `mapstructure:"restrict_channel_ids"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// Load builds Config from defaults, ~/.discoclaw/config.yaml,
// ./config.yaml, and DISCOCLAW_* environment variables, in increasing
// priority order.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), ".discoclaw")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		local := viper.New()
		local.SetConfigFile("./config.yaml")
		if err := local.ReadInConfig(); err == nil {
			_ = v.MergeConfigMap(local.AllSettings())
		}
	}

	v.SetEnvPrefix("DISCOCLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_root", filepath.Join(os.Getenv("HOME"), ".discoclaw", "data"))

	v.SetDefault("runtime.primary", "claude")
	v.SetDefault("runtime.model", "capable")
	v.SetDefault("runtime.timeout_ms", 1800000)
	v.SetDefault("runtime.max_concurrent_invocations", 0)

	v.SetDefault("action.enabled", true)

	v.SetDefault("context.message_history_budget", 8000)
	v.SetDefault("context.durable_inject_max_chars", 4000)
	v.SetDefault("context.shortterm_inject_max_chars", 4000)
	v.SetDefault("context.reply_chain_and_pins_budget", 4000)
	v.SetDefault("context.attachment_budget", 2000)

	v.SetDefault("forge.max_audit_rounds", 5)

	v.SetDefault("plan.phase_audit_fix_max", 3)
	v.SetDefault("plan.phase_max_context_files", 5)

	v.SetDefault("cron.max_jitter_seconds", 30)
	v.SetDefault("cron.heartbeat_threshold", "35m")

	v.SetDefault("defer.max_delay_seconds", 1800)
	v.SetDefault("defer.max_concurrent", 5)

	v.SetDefault("reaction.max_age_hours", 24)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// bindEnv binds the literal environment variable names spec §6 names,
// since their un-prefixed/un-nested shapes don't follow viper's automatic
// "DISCOCLAW_SECTION_KEY" convention.
func bindEnv(v *viper.Viper) {
	pairs := map[string]string{
		"runtime.primary":                     "PRIMARY_RUNTIME",
		"runtime.model":                       "RUNTIME_MODEL",
		"runtime.timeout_ms":                  "RUNTIME_TIMEOUT_MS",
		"runtime.max_concurrent_invocations":  "MAX_CONCURRENT_INVOCATIONS",
		"context.message_history_budget":      "MESSAGE_HISTORY_BUDGET",
		"context.durable_inject_max_chars":    "DURABLE_INJECT_MAX_CHARS",
		"context.shortterm_inject_max_chars":  "SHORTTERM_INJECT_MAX_CHARS",
		"forge.max_audit_rounds":              "FORGE_MAX_AUDIT_ROUNDS",
		"plan.phase_audit_fix_max":            "PLAN_PHASE_AUDIT_FIX_MAX",
		"plan.phase_max_context_files":        "PLAN_PHASE_MAX_CONTEXT_FILES",
		"reaction.max_age_hours":              "REACTION_MAX_AGE_HOURS",
		"reaction.handler":                    "REACTION_HANDLER",
		"reaction.remove_handler":             "REACTION_REMOVE_HANDLER",
		"allow.users":                         "ALLOWLIST_USERS",
		"allow.restrict_channel_ids":          "RESTRICT_CHANNEL_IDS",
	}
	for key, env := range pairs {
		_ = v.BindEnv(key, env)
	}
}
