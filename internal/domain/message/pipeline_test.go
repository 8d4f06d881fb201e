package message

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/discoclaw/discoclaw/internal/domain/action"
	"github.com/discoclaw/discoclaw/internal/domain/allowlist"
	"github.com/discoclaw/discoclaw/internal/domain/contextasm"
	"github.com/discoclaw/discoclaw/internal/domain/entity"
	"github.com/discoclaw/discoclaw/internal/domain/inflight"
	"github.com/discoclaw/discoclaw/internal/domain/runtime"
	"github.com/discoclaw/discoclaw/internal/infrastructure/chatservice"
)

// fakeChat implements chatservice.ChatService, recording edits/deletes/posts.
type fakeChat struct {
	nextID  int
	posts   []string
	edits   []string
	deletes []string
}

func (f *fakeChat) PostMessage(channelID, text string) (string, error) {
	f.nextID++
	f.posts = append(f.posts, text)
	return "msg-" + string(rune('0'+f.nextID)), nil
}
func (f *fakeChat) EditMessage(channelID, messageID, text string) error {
	f.edits = append(f.edits, text)
	return nil
}
func (f *fakeChat) DeleteMessage(channelID, messageID string) error {
	f.deletes = append(f.deletes, messageID)
	return nil
}
func (f *fakeChat) History(channelID string, limit int) ([]chatservice.Message, error) { return nil, nil }
func (f *fakeChat) Pins(channelID string) ([]chatservice.Message, error)                { return nil, nil }
func (f *fakeChat) ListCronThreads() ([]chatservice.Thread, error)                      { return nil, nil }
func (f *fakeChat) CreateThread(forumID, title, starterText string, tags []string) (chatservice.Thread, error) {
	return chatservice.Thread{}, nil
}
func (f *fakeChat) CreateChannel(guildID, name, parentCategoryID string) (string, error) {
	return "", nil
}
func (f *fakeChat) ArchiveChannel(channelID string) error { return nil }
func (f *fakeChat) BanUser(guildID, userID, reason string) error { return nil }
func (f *fakeChat) TimeoutUser(guildID, userID string, duration time.Duration, reason string) error {
	return nil
}
func (f *fakeChat) CreatePoll(channelID, question string, options []string) error { return nil }
func (f *fakeChat) SetBotProfile(name, avatarURL string) error                    { return nil }

// fakeAdapter yields a scripted sequence of events for every Invoke call,
// recording the prompts it was invoked with.
type fakeAdapter struct {
	events  []entity.EngineEvent
	prompts []string
}

func (a *fakeAdapter) ID() string                          { return "fake" }
func (a *fakeAdapter) Capabilities() []entity.Capability    { return nil }
func (a *fakeAdapter) IsAvailable() bool                    { return true }
func (a *fakeAdapter) Invoke(ctx context.Context, params entity.InvokeParams) (<-chan entity.EngineEvent, error) {
	a.prompts = append(a.prompts, params.Prompt)
	ch := make(chan entity.EngineEvent, len(a.events))
	for _, ev := range a.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newTestPipeline(t *testing.T, adapter runtime.Adapter, chat chatservice.ChatService) (*Pipeline, *allowlist.Set) {
	t.Helper()
	workspace := t.TempDir()
	modules := t.TempDir()
	asm, err := contextasm.NewAssembler(contextasm.Config{WorkspaceDir: workspace, PersonaContextModules: modules})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := inflight.NewRegistry("")
	if err != nil {
		t.Fatal(err)
	}
	catalog := action.NewCatalog()
	executor := action.NewExecutor(catalog)
	users := allowlist.NewSet("123456789012345678")

	p := NewPipeline(Config{
		Model:               "capable",
		EditThrottle:        time.Millisecond,
		ActionFollowupDepth: 3,
		EnabledCategories:   action.AllCategories(),
	}, users, chat, reg, asm, adapter, executor, catalog, &action.SubsystemContexts{})
	return p, users
}

func TestHandleDeniesNonAllowlistedUser(t *testing.T) {
	chat := &fakeChat{}
	p, _ := newTestPipeline(t, &fakeAdapter{}, chat)

	in := Incoming{Message: chatservice.Message{AuthorID: "999999999999999999", ChannelID: "c1", Content: "hi"}}
	if err := p.Handle(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if len(chat.posts) != 0 {
		t.Fatalf("expected no placeholder posted for denied user, got %d", len(chat.posts))
	}
}

func TestHandleStreamsTextAndResolves(t *testing.T) {
	chat := &fakeChat{}
	adapter := &fakeAdapter{events: []entity.EngineEvent{
		{Kind: entity.EventTextDelta, Text: "Hello"},
		{Kind: entity.EventTextDelta, Text: ", world"},
		{Kind: entity.EventDone},
	}}
	p, _ := newTestPipeline(t, adapter, chat)

	in := Incoming{Message: chatservice.Message{AuthorID: "123456789012345678", ChannelID: "c1", Content: "hi"}}
	if err := p.Handle(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if len(chat.posts) != 1 {
		t.Fatalf("expected one placeholder posted, got %d", len(chat.posts))
	}
	if len(chat.edits) == 0 {
		t.Fatal("expected at least one edit with streamed text")
	}
	last := chat.edits[len(chat.edits)-1]
	if last != "Hello, world" {
		t.Fatalf("expected final edit to contain full text, got %q", last)
	}
}

func TestHandleInjectsMemoryIntoPrompt(t *testing.T) {
	chat := &fakeChat{}
	adapter := &fakeAdapter{events: []entity.EngineEvent{
		{Kind: entity.EventTextDelta, Text: "ok"},
		{Kind: entity.EventDone},
	}}
	p, _ := newTestPipeline(t, adapter, chat)
	p.OnMemoryRead(func(userID string) (shortTerm, durable string) {
		return "user: earlier turn", "- remembered fact"
	})

	in := Incoming{Message: chatservice.Message{AuthorID: "123456789012345678", ChannelID: "c1", Content: "hi"}}
	if err := p.Handle(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if len(adapter.prompts) != 1 {
		t.Fatalf("expected one invocation, got %d", len(adapter.prompts))
	}
	prompt := adapter.prompts[0]
	if !strings.Contains(prompt, "earlier turn") {
		t.Fatalf("expected short-term memory injected into prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, "remembered fact") {
		t.Fatalf("expected durable memory injected into prompt, got %q", prompt)
	}
}

func TestHandleSuppressesHeartbeatSentinel(t *testing.T) {
	chat := &fakeChat{}
	adapter := &fakeAdapter{events: []entity.EngineEvent{
		{Kind: entity.EventTextDelta, Text: "HEARTBEAT_OK"},
		{Kind: entity.EventDone},
	}}
	p, _ := newTestPipeline(t, adapter, chat)

	in := Incoming{Message: chatservice.Message{AuthorID: "123456789012345678", ChannelID: "c1", Content: "ping"}}
	if err := p.Handle(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if len(chat.deletes) != 1 {
		t.Fatalf("expected placeholder deleted for sentinel response, got %d deletes", len(chat.deletes))
	}
}

func TestHandleDeletesPlaceholderForLoneSendMessageAction(t *testing.T) {
	chat := &fakeChat{}
	catalog := action.NewCatalog()
	executor := action.NewExecutor(catalog)
	executor.RegisterHandler("sendMessage", func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		return action.Result{OK: true, Summary: "sent"}
	})

	workspace := t.TempDir()
	modules := t.TempDir()
	asm, err := contextasm.NewAssembler(contextasm.Config{WorkspaceDir: workspace, PersonaContextModules: modules})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := inflight.NewRegistry("")
	if err != nil {
		t.Fatal(err)
	}
	users := allowlist.NewSet("123456789012345678")

	adapter := &fakeAdapter{events: []entity.EngineEvent{
		{Kind: entity.EventTextDelta, Text: `<discord-action>{"type":"sendMessage","text":"hi"}</discord-action>`},
		{Kind: entity.EventDone},
	}}

	p := NewPipeline(Config{Model: "capable", EditThrottle: time.Millisecond, ActionFollowupDepth: 3, EnabledCategories: action.AllCategories()},
		users, chat, reg, asm, adapter, executor, catalog, &action.SubsystemContexts{})

	in := Incoming{Message: chatservice.Message{AuthorID: "123456789012345678", ChannelID: "c1", Content: "send it"}}
	if err := p.Handle(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if len(chat.deletes) != 1 {
		t.Fatalf("expected placeholder deleted when the only action is a bare sendMessage, got %d deletes", len(chat.deletes))
	}
}

func TestQueuePreservesPerChannelOrder(t *testing.T) {
	chat := &fakeChat{}
	adapter := &fakeAdapter{events: []entity.EngineEvent{{Kind: entity.EventDone}}}
	p, _ := newTestPipeline(t, adapter, chat)
	q := NewQueue(context.Background(), p)
	defer q.Shutdown(context.Background())

	for i := 0; i < 5; i++ {
		q.Enqueue(Incoming{Message: chatservice.Message{AuthorID: "123456789012345678", ChannelID: "c1", Content: "msg"}})
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Shutdown(shutdownCtx); err != nil {
		t.Fatal(err)
	}
	if len(chat.posts) != 5 {
		t.Fatalf("expected 5 placeholders posted in order, got %d", len(chat.posts))
	}
}
