// Package message implements the per-channel FIFO message handler
// pipeline of spec §4.3: gate, placeholder, context assembly, runtime
// invocation, streaming edits, action parse/execute, follow-up loop,
// trivial-response suppression, and resolve. Grounded on the teacher's
// telegramMessageHandler.HandleMessage / StagedReply streaming-edit loop.
package message

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/discoclaw/discoclaw/internal/domain/action"
	"github.com/discoclaw/discoclaw/internal/domain/allowlist"
	"github.com/discoclaw/discoclaw/internal/domain/contextasm"
	"github.com/discoclaw/discoclaw/internal/domain/entity"
	"github.com/discoclaw/discoclaw/internal/domain/inflight"
	"github.com/discoclaw/discoclaw/internal/domain/runtime"
	"github.com/discoclaw/discoclaw/internal/infrastructure/chatservice"
)

// sentinels are trivial-response markers that trigger placeholder
// deletion when no actions ran and no images were produced.
var sentinels = map[string]bool{"HEARTBEAT_OK": true, "(no output)": true}

// Incoming is one message arriving for the pipeline to process.
type Incoming struct {
	Message      chatservice.Message
	ReplyChain   []chatservice.Message
	Pins         []chatservice.Message
	History      []chatservice.Message
	RestrictedTo *allowlist.Set // nil = no channel restriction
}

// Config parameterizes one Pipeline.
type Config struct {
	Model               string
	EditThrottle        time.Duration // default 1s
	UseRuntimeSessions  bool
	ActionFollowupDepth int // default 3
	EnabledCategories   action.EnabledSet
}

// Pipeline wires the allowlist gate, placeholder registry, context
// assembler, runtime adapter, and action executor into the full
// per-message handling sequence.
type Pipeline struct {
	cfg       Config
	users     *allowlist.Set
	chat      chatservice.ChatService
	inflight  *inflight.Registry
	assembler *contextasm.Assembler
	adapter   runtime.Adapter
	executor  *action.Executor
	catalog   *action.Catalog
	subs      *action.SubsystemContexts

	onMemoryTurn func(userID, role, text string)
	onMemoryRead func(userID string) (shortTerm, durable string)
}

func NewPipeline(
	cfg Config,
	users *allowlist.Set,
	chat chatservice.ChatService,
	reg *inflight.Registry,
	assembler *contextasm.Assembler,
	adapter runtime.Adapter,
	executor *action.Executor,
	catalog *action.Catalog,
	subs *action.SubsystemContexts,
) *Pipeline {
	if cfg.EditThrottle <= 0 {
		cfg.EditThrottle = time.Second
	}
	if cfg.ActionFollowupDepth <= 0 {
		cfg.ActionFollowupDepth = 3
	}
	return &Pipeline{
		cfg: cfg, users: users, chat: chat, inflight: reg, assembler: assembler,
		adapter: adapter, executor: executor, catalog: catalog, subs: subs,
	}
}

// OnMemoryTurn registers a callback invoked with each successful turn for
// memory side-effects (durable/short-term append), per spec §4.3's final
// stage.
func (p *Pipeline) OnMemoryTurn(fn func(userID, role, text string)) { p.onMemoryTurn = fn }

// OnMemoryRead registers a callback consulted during context assembly
// (stage 3) to inject a user's rolling short-term window and durable
// memory items back into the prompt, the read half of spec §4.5's
// short_term/durable sections.
func (p *Pipeline) OnMemoryRead(fn func(userID string) (shortTerm, durable string)) { p.onMemoryRead = fn }

// Handle runs the full 9-stage pipeline for one incoming message. Callers
// run Handle on a single per-channel goroutine to preserve FIFO order
// within a channel; different channels may call Handle concurrently.
func (p *Pipeline) Handle(ctx context.Context, in Incoming) error {
	// Stage 1: gate.
	if !p.users.IsAllowlisted(in.Message.AuthorID) {
		return nil
	}
	if in.RestrictedTo != nil && !in.RestrictedTo.IsAllowlisted(in.Message.ChannelID) {
		return nil
	}

	// Stage 2: reply placeholder.
	placeholderID, err := p.chat.PostMessage(in.Message.ChannelID, "thinking…")
	if err != nil {
		return err
	}
	sessionKey := p.sessionKeyFor(in.Message)
	if err := p.inflight.Register(in.Message.ChannelID, placeholderID, "reply", sessionKey); err != nil {
		return err
	}
	defer p.inflight.Resolve(placeholderID)

	// Stage 3: context assembly.
	var shortTerm, durable string
	if p.onMemoryRead != nil {
		shortTerm, durable = p.onMemoryRead(in.Message.AuthorID)
	}
	prompt, err := p.assembler.Assemble(contextasm.Input{
		UserMessage:    in.Message.Content,
		ShortTerm:      shortTerm,
		Durable:        durable,
		ReplyChain:     in.ReplyChain,
		Pins:           in.Pins,
		ChannelHistory: in.History,
	})
	if err != nil {
		_ = p.chat.EditMessage(in.Message.ChannelID, placeholderID, "Runtime error: context assembly failed")
		return err
	}

	finalText, images, err := p.invokeAndStream(ctx, in.Message.ChannelID, placeholderID, sessionKey, prompt)
	if err != nil {
		return err
	}

	return p.finishTurn(ctx, in, placeholderID, sessionKey, finalText, images, 0)
}

// invokeAndStream runs stage 4/5: build InvokeParams, stream events,
// accumulate text under a throttled edit schedule, and return the final
// text plus the number of images produced.
func (p *Pipeline) invokeAndStream(ctx context.Context, channelID, placeholderID, sessionKey, prompt string) (string, int, error) {
	params := entity.InvokeParams{
		Prompt: prompt, Model: p.cfg.Model, SessionKey: sessionKey,
		ToolCallGate: true,
	}
	events, err := p.adapter.Invoke(ctx, params)
	if err != nil {
		_ = p.chat.EditMessage(channelID, placeholderID, fmt.Sprintf("Runtime error: %s", err))
		return "", 0, nil
	}

	var sb strings.Builder
	imageCount := 0
	lastEdit := time.Time{}

	for ev := range events {
		switch ev.Kind {
		case entity.EventTextDelta:
			sb.WriteString(ev.Text)
			if time.Since(lastEdit) >= p.cfg.EditThrottle {
				_ = p.chat.EditMessage(channelID, placeholderID, sb.String())
				_ = p.inflight.NoteEdit(placeholderID)
				lastEdit = time.Now()
			}
		case entity.EventTextFinal:
			sb.Reset()
			sb.WriteString(ev.Text)
		case entity.EventLogLine:
			_ = p.chat.EditMessage(channelID, placeholderID, sb.String()+"\n> "+ev.Line)
		case entity.EventImageData:
			imageCount++
		case entity.EventError:
			_ = p.chat.EditMessage(channelID, placeholderID, fmt.Sprintf("Runtime error: %s", ev.Text))
			return sb.String(), imageCount, nil
		case entity.EventDone:
			_ = p.chat.EditMessage(channelID, placeholderID, sb.String())
			_ = p.inflight.NoteEdit(placeholderID)
		}
	}
	return sb.String(), imageCount, nil
}

// finishTurn runs stages 6-9: action parse/execute, the follow-up loop,
// trivial-response suppression, and the memory side-effect hook. depth
// tracks the follow-up recursion, capped by ActionFollowupDepth.
func (p *Pipeline) finishTurn(ctx context.Context, in Incoming, placeholderID, sessionKey, text string, imageCount, depth int) error {
	channelID := in.Message.ChannelID
	parsed := action.Parse(text, p.catalog)

	actionCtx := action.Context{
		GuildID: in.Message.GuildID, ChannelID: channelID, MessageID: placeholderID,
		Confirmation: action.ConfirmationAutomated,
	}
	results := p.executor.Execute(actionCtx, p.subs, p.cfg.EnabledCategories, parsed.Actions)

	if isSendMessageOnly(parsed) && strings.TrimSpace(parsed.CleanText) == "" && len(results) == 1 && results[0].Result.OK {
		return p.chat.DeleteMessage(channelID, placeholderID)
	}

	summary := action.RenderSummary(results)
	final := strings.TrimSpace(parsed.CleanText)
	if summary != "" {
		if final != "" {
			final += "\n\n" + summary
		} else {
			final = summary
		}
	}
	if final != strings.TrimSpace(text) {
		_ = p.chat.EditMessage(channelID, placeholderID, final)
	}

	// Stage 7: follow-up loop.
	if depth < p.cfg.ActionFollowupDepth {
		for _, r := range results {
			if r.Result.FollowUp {
				followPrompt := fmt.Sprintf("[Auto-follow-up]\n%v", r.Result.FollowUpData)
				newText, newImages, err := p.invokeAndStream(ctx, channelID, placeholderID, sessionKey, followPrompt)
				if err != nil {
					return err
				}
				return p.finishTurn(ctx, in, placeholderID, sessionKey, newText, newImages, depth+1)
			}
		}
	}

	// Stage 8: trivial-response suppression.
	if sentinels[strings.TrimSpace(parsed.CleanText)] && len(parsed.Actions) == 0 && imageCount == 0 {
		return p.chat.DeleteMessage(channelID, placeholderID)
	}
	if strings.TrimSpace(parsed.CleanText) == "" && len(parsed.Actions) == 0 && imageCount == 0 {
		return p.chat.DeleteMessage(channelID, placeholderID)
	}

	if p.onMemoryTurn != nil {
		p.onMemoryTurn(in.Message.AuthorID, "user", in.Message.Content)
		p.onMemoryTurn(in.Message.AuthorID, "assistant", parsed.CleanText)
	}

	return nil
}

func isSendMessageOnly(parsed action.ParseResult) bool {
	return len(parsed.Actions) == 1 && parsed.Actions[0].Type == "sendMessage"
}

// sessionKeyFor derives the per-user-per-channel session key, unless
// UseRuntimeSessions is disabled, in which case every invocation is
// stateless under a scope-less key.
func (p *Pipeline) sessionKeyFor(m chatservice.Message) string {
	if !p.cfg.UseRuntimeSessions {
		return runtime.SessionKey("reply", p.cfg.Model, "stateless")
	}
	return runtime.SessionKey("reply", p.cfg.Model, m.AuthorID+":"+m.ChannelID)
}
