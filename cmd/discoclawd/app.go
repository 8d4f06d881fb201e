package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/discoclaw/discoclaw/internal/domain/action"
	"github.com/discoclaw/discoclaw/internal/domain/allowlist"
	"github.com/discoclaw/discoclaw/internal/domain/contextasm"
	"github.com/discoclaw/discoclaw/internal/domain/cron"
	"github.com/discoclaw/discoclaw/internal/domain/deferred"
	"github.com/discoclaw/discoclaw/internal/domain/entity"
	"github.com/discoclaw/discoclaw/internal/domain/forge"
	"github.com/discoclaw/discoclaw/internal/domain/inflight"
	"github.com/discoclaw/discoclaw/internal/domain/memorystore"
	"github.com/discoclaw/discoclaw/internal/domain/message"
	"github.com/discoclaw/discoclaw/internal/domain/plan"
	"github.com/discoclaw/discoclaw/internal/domain/runtime"
	"github.com/discoclaw/discoclaw/internal/domain/task"
	"github.com/discoclaw/discoclaw/internal/infrastructure/chatservice"
	"github.com/discoclaw/discoclaw/internal/infrastructure/config"
	"github.com/discoclaw/discoclaw/internal/infrastructure/persistence"
	"github.com/discoclaw/discoclaw/internal/infrastructure/pidlock"
	"github.com/discoclaw/discoclaw/internal/infrastructure/runtimeadapter/claudecli"
	"github.com/discoclaw/discoclaw/internal/infrastructure/runtimeadapter/codexcli"
	"github.com/discoclaw/discoclaw/internal/infrastructure/runtimeadapter/geminicli"
	"github.com/discoclaw/discoclaw/internal/infrastructure/runtimeadapter/openaicompat"
	"github.com/discoclaw/discoclaw/pkg/safego"
)

// App wires every subsystem Discoclaw names into a single runnable unit.
// Grounded on the teacher's application.App struct (subsystem fields plus
// Start/Stop lifecycle), generalized from NGOClaw's HTTP/Telegram/gRPC
// server trio to Discoclaw's message queue, cron, and defer schedulers.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	lock     *pidlock.Lock
	scaffold entity.ScaffoldRecord

	chat        chatservice.ChatService
	runtimes    *runtime.Registry
	limiter     *runtime.Limiter
	sessions    *runtime.SessionManager
	inflightReg *inflight.Registry

	tasks     *task.Store
	durable   *memorystore.DurableStore
	shortTerm *memorystore.ShortTermStore

	forgeOrch  *forge.Orchestrator
	planRunner *plan.Runner
	cronSched  *cron.Scheduler
	cronSync   *cron.SyncCoordinator
	deferSched *deferred.Scheduler

	assembler        *contextasm.Assembler
	catalog          *action.Catalog
	executor         *action.Executor
	pipeline         *message.Pipeline
	queue            *message.Queue
	restrictChannels *allowlist.Set // nil = unrestricted; consulted by the inbound chat adapter per spec §5
}

// NewApp constructs every subsystem but starts none of them; callers call
// Start to begin serving traffic.
func NewApp(cfg *config.Config, logger *zap.Logger, chat chatservice.ChatService) (*App, error) {
	app := &App{cfg: cfg, logger: logger, chat: chat}

	if err := app.wireRuntime(); err != nil {
		return nil, fmt.Errorf("wire runtime: %w", err)
	}
	if err := app.wireStores(); err != nil {
		return nil, fmt.Errorf("wire stores: %w", err)
	}
	if err := app.wireSubsystems(); err != nil {
		return nil, fmt.Errorf("wire subsystems: %w", err)
	}
	if err := app.wireActions(); err != nil {
		return nil, fmt.Errorf("wire actions: %w", err)
	}
	if err := app.wirePipeline(); err != nil {
		return nil, fmt.Errorf("wire pipeline: %w", err)
	}
	return app, nil
}

func (a *App) wireRuntime() error {
	a.runtimes = runtime.NewRegistry()
	a.limiter = runtime.NewLimiter(a.cfg.Runtime.MaxConcurrentInvokes)

	sessions, err := runtime.NewSessionManager(filepath.Join(a.cfg.DataRoot, "sessions.json"))
	if err != nil {
		return err
	}
	a.sessions = sessions

	a.runtimes.Register(claudecli.New(a.logger, ""))
	a.runtimes.Register(codexcli.New(a.logger, ""))
	a.runtimes.Register(geminicli.New(a.logger, ""))
	for _, p := range a.cfg.Runtime.Providers {
		models := make(map[string]string, len(p.Models))
		for _, m := range p.Models {
			models[m] = m
		}
		a.runtimes.Register(openaicompat.New(openaicompat.Config{
			Name: p.Name, BaseURL: p.BaseURL, APIKey: p.APIKey, Models: models,
		}, a.logger))
	}
	return nil
}

func (a *App) wireStores() error {
	reg, err := inflight.NewRegistry(filepath.Join(a.cfg.DataRoot, "inflight.json"))
	if err != nil {
		return err
	}
	a.inflightReg = reg

	a.tasks, err = task.NewStore(filepath.Join(a.cfg.DataRoot, "tasks", "tasks.jsonl"), "ws")
	if err != nil {
		return err
	}

	a.durable = memorystore.NewDurableStore(filepath.Join(a.cfg.DataRoot, "memory", "durable"))
	a.shortTerm = memorystore.NewShortTermStore(filepath.Join(a.cfg.DataRoot, "memory", "shortterm"), 20)

	if _, err := persistence.LoadJSON(filepath.Join(a.cfg.DataRoot, "system-scaffold.json"), &a.scaffold); err != nil {
		return err
	}
	return nil
}

func (a *App) blockingInvoker() *runtime.BlockingInvoker {
	return runtime.NewBlockingInvoker(a.runtimes, a.limiter, a.cfg.Runtime.Primary, time.Duration(a.cfg.Runtime.TimeoutMS)*time.Millisecond)
}

func (a *App) wireSubsystems() error {
	workspace := filepath.Join(a.cfg.DataRoot, "workspace")
	cronDir := filepath.Join(a.cfg.DataRoot, "cron")
	if err := os.MkdirAll(cronDir, 0o755); err != nil {
		return err
	}
	invoker := a.blockingInvoker()

	a.forgeOrch = forge.NewOrchestrator(forge.Config{
		PlansDir:       filepath.Join(workspace, "plans"),
		DrafterModel:   a.cfg.Runtime.Model,
		AuditorModel:   a.cfg.Runtime.Model,
		MaxAuditRounds: a.cfg.Forge.MaxAuditRounds,
		Tasks:          a.tasks,
	}, invoker)

	a.planRunner = plan.NewRunner(plan.RunnerConfig{
		WorkspaceDir:        workspace,
		Model:               a.cfg.Runtime.Model,
		MaxAuditFixAttempts: a.cfg.Plan.PhaseAuditFixMax,
	}, invoker)

	a.cronSched = cron.NewScheduler(cron.Config{
		LocksDir:  filepath.Join(cronDir, "locks"),
		StatsPath: filepath.Join(cronDir, "cron-run-stats.json"),
		Model:     a.cfg.Runtime.Model,
	}, invoker, cronPoster{chat: a.chat})

	if a.chat != nil {
		a.cronSync = cron.NewSyncCoordinator(a.cronSched, cronThreadSource{chat: a.chat}, filepath.Join(cronDir, "tag-map.json"))
	}

	a.deferSched = deferred.NewScheduler(deferred.Config{
		MaxDelaySeconds: a.cfg.Defer.MaxDelaySeconds,
		MaxConcurrent:   a.cfg.Defer.MaxConcurrent,
	}, a.deferHandler)
	return nil
}

// deferHandler re-enters the message pipeline with the deferred prompt
// once its timer fires, per spec §4.9.
func (a *App) deferHandler(targetChannel, prompt string) error {
	if a.queue == nil {
		return fmt.Errorf("deferred prompt fired before the message queue was wired")
	}
	a.queue.Enqueue(message.Incoming{Message: chatservice.Message{ChannelID: targetChannel, Content: prompt}})
	return nil
}

// cronPoster adapts chatservice.ChatService to cron.Poster.
type cronPoster struct{ chat chatservice.ChatService }

func (p cronPoster) PostMessage(threadID, text string) error {
	_, err := p.chat.PostMessage(threadID, text)
	return err
}

// cronThreadSource adapts chatservice.ChatService.ListCronThreads'
// []Thread return shape to cron.ThreadSource's []ThreadInfo, the small
// shim the two packages' independent layering requires.
type cronThreadSource struct{ chat chatservice.ChatService }

func (s cronThreadSource) ListCronThreads() ([]cron.ThreadInfo, error) {
	threads, err := s.chat.ListCronThreads()
	if err != nil {
		return nil, err
	}
	out := make([]cron.ThreadInfo, 0, len(threads))
	for _, t := range threads {
		out = append(out, cron.ThreadInfo{ThreadID: t.ID, StarterText: t.StarterText, Tags: t.Tags})
	}
	return out, nil
}

func (a *App) wireActions() error {
	a.catalog = action.NewCatalog()
	a.executor = action.NewExecutor(a.catalog)
	registerActionHandlers(a.executor, a)
	return nil
}

func (a *App) wirePipeline() error {
	workspace := filepath.Join(a.cfg.DataRoot, "workspace")
	modules := filepath.Join(workspace, "persona-context")

	asm, err := contextasm.NewAssembler(contextasm.Config{
		WorkspaceDir:            workspace,
		PersonaContextModules:   modules,
		ChannelContextBudget:    a.cfg.Context.MessageHistoryBudget,
		ShortTermBudget:         a.cfg.Context.ShortTermInjectMaxChars,
		DurableBudget:           a.cfg.Context.DurableInjectMaxChars,
		ReplyChainAndPinsBudget: a.cfg.Context.ReplyChainAndPinsBudget,
		ChannelHistoryBudget:    a.cfg.Context.MessageHistoryBudget,
		AttachmentBudget:        a.cfg.Context.AttachmentBudget,
	})
	if err != nil {
		return err
	}
	a.assembler = asm

	if a.chat == nil {
		return nil // CLI/diagnostic modes run without a chat backend.
	}

	adapter, err := a.runtimes.Get(a.cfg.Runtime.Primary)
	if err != nil {
		return err
	}

	enabled := action.AllCategories()
	if !a.cfg.Action.Enabled {
		enabled = action.EnabledSet{}
	}
	for cat, on := range a.cfg.Action.Categories {
		enabled[action.Category(cat)] = on
	}

	users := allowlist.ParseList(a.cfg.Allow.Users)
	if a.cfg.Allow.RestrictChannels != "" {
		a.restrictChannels = allowlist.ParseList(a.cfg.Allow.RestrictChannels)
	}

	a.pipeline = message.NewPipeline(message.Config{
		Model:               a.cfg.Runtime.Model,
		UseRuntimeSessions:  true,
		ActionFollowupDepth: 3,
		EnabledCategories:   enabled,
	}, users, a.chat, a.inflightReg, a.assembler, adapter, a.executor, a.catalog, &action.SubsystemContexts{
		Task: a.tasks, Cron: a.cronSched, Forge: a.forgeOrch, Plan: a.planRunner,
		Memory: memorySubsystem{durable: a.durable, shortTerm: a.shortTerm}, Defer: a.deferSched,
	})
	a.pipeline.OnMemoryTurn(func(userID, role, text string) {
		_ = a.shortTerm.Append(userID, role, text)
	})
	a.pipeline.OnMemoryRead(func(userID string) (shortTerm, durable string) {
		return renderShortTerm(a.shortTerm, userID), renderDurable(a.durable, userID)
	})

	return nil
}

// renderShortTerm flattens a user's rolling window into "role: text"
// lines, oldest first, for injection into the assembled prompt.
func renderShortTerm(store *memorystore.ShortTermStore, userID string) string {
	turns, err := store.Recent(userID)
	if err != nil || len(turns) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderDurable flattens a user's active durable memory items into one
// bullet per item, most-recent first, matching Query's ordering.
func renderDurable(store *memorystore.DurableStore, userID string) string {
	items, err := store.Query(userID, nil)
	if err != nil || len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, item := range items {
		fmt.Fprintf(&sb, "- %s\n", item.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// memorySubsystem bundles the two memory stores behind one
// SubsystemContexts.Memory value for action handlers.
type memorySubsystem struct {
	durable   *memorystore.DurableStore
	shortTerm *memorystore.ShortTermStore
}

// Start acquires the process lock, cleans up orphaned in-flight replies,
// and starts the cron tick loop and thread-sync watcher in the
// background. Start returns as soon as every subsystem is running; the
// caller blocks on its own shutdown signal and calls Stop when ready.
func (a *App) Start(ctx context.Context) error {
	lock, err := pidlock.Acquire(a.cfg.DataRoot)
	if err != nil {
		return err
	}
	a.lock = lock

	if a.chat != nil {
		if _, err := a.inflightReg.CleanupOrphans(a.chat); err != nil {
			a.logger.Warn("cleanup orphans failed", zap.Error(err))
		}
		a.queue = message.NewQueue(ctx, a.pipeline)
	}

	safego.Go(a.logger, "cron-scheduler", a.cronSched.Start)
	if a.cronSync != nil {
		if err := a.cronSync.Start(); err != nil {
			a.logger.Warn("cron sync start failed", zap.Error(err))
		}
	}
	return nil
}

// Stop drains in-flight work and releases the process lock, bounded by
// ctx.
func (a *App) Stop(ctx context.Context) error {
	a.cronSched.Stop()
	if a.cronSync != nil {
		a.cronSync.Stop()
	}
	if err := a.deferSched.Shutdown(ctx); err != nil {
		a.logger.Warn("defer shutdown incomplete", zap.Error(err))
	}
	if a.queue != nil {
		if err := a.queue.Shutdown(ctx); err != nil {
			a.logger.Warn("message queue shutdown incomplete", zap.Error(err))
		}
	}
	if a.chat != nil {
		if _, err := a.inflightReg.Drain(a.chat, "Interrupted by shutdown.", 5*time.Second); err != nil {
			a.logger.Warn("drain in-flight replies failed", zap.Error(err))
		}
	}
	return a.lock.Release()
}
