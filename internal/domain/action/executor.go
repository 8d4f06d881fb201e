package action

import "fmt"

// ConfirmationMode distinguishes an action a user explicitly confirmed
// from one an automated flow (cron, follow-up) produced.
type ConfirmationMode string

const (
	ConfirmationUser      ConfirmationMode = "user_confirmed"
	ConfirmationAutomated ConfirmationMode = "automated"
)

// Context is the shared per-invocation context every category handler
// receives, mirroring the teacher's tool.ExecutionContext generalized to
// carry chat-service addressing instead of a sandbox/gateway/remote enum.
type Context struct {
	GuildID         string
	ChannelID       string
	MessageID       string
	ThreadParentID  string
	Confirmation    ConfirmationMode
}

// Result is one handler's outcome.
type Result struct {
	OK         bool
	Summary    string
	Error      string
	Kind       string
	FollowUp   bool
	FollowUpData any
}

// Handler executes one action type against Context and SubsystemContexts.
type Handler func(ctx Context, subs *SubsystemContexts, payload map[string]any) Result

// SubsystemContexts bundles the subsystem collaborators an action handler
// may need; any field may be nil when that subsystem is unavailable in
// the current invocation (cron runs, for instance, have no memory or
// config subsystem). Passing a bundle avoids any subsystem holding a
// long-lived reference to another, per spec §9's cyclic-reference note.
type SubsystemContexts struct {
	Task    any
	Cron    any
	Forge   any
	Plan    any
	Memory  any
	Imagegen any
	Voice   any
	Config  any
	Defer   any
}

// Executor validates an action against the enabled category set and
// catalog, then dispatches it to a registered Handler.
type Executor struct {
	catalog  *Catalog
	handlers map[string]Handler
}

func NewExecutor(catalog *Catalog) *Executor {
	return &Executor{catalog: catalog, handlers: make(map[string]Handler)}
}

func (e *Executor) RegisterHandler(actionType string, h Handler) {
	e.handlers[actionType] = h
}

// ExecutedResult pairs an Action with its outcome, or records it as
// unavailable when its category flag is disabled.
type ExecutedResult struct {
	Action      Action
	Result      Result
	Unavailable bool
}

// Execute runs every action in actions against enabled, in order,
// returning one ExecutedResult per action.
func (e *Executor) Execute(ctx Context, subs *SubsystemContexts, enabled EnabledSet, actions []Action) []ExecutedResult {
	out := make([]ExecutedResult, 0, len(actions))
	for _, a := range actions {
		info, ok := e.catalog.Lookup(a.Type)
		if !ok || !enabled.Enabled(info.Category) {
			out = append(out, ExecutedResult{Action: a, Unavailable: true})
			continue
		}
		handler, ok := e.handlers[a.Type]
		if !ok {
			out = append(out, ExecutedResult{Action: a, Result: Result{OK: false, Error: fmt.Sprintf("no handler registered for %q", a.Type)}})
			continue
		}
		res := handler(ctx, subs, a.Payload)
		if info.FollowUpEligible && res.OK {
			res.FollowUp = true
		}
		out = append(out, ExecutedResult{Action: a, Result: res})
	}
	return out
}

// HasFollowUpEligible reports whether any executed result should trigger
// the follow-up loop (spec §4.3 step 7 / §4.4 "Follow-up trigger").
func HasFollowUpEligible(results []ExecutedResult) bool {
	for _, r := range results {
		if r.Result.FollowUp {
			return true
		}
	}
	return false
}

// RenderSummary builds the short result list appended to outgoing text,
// suppressing sendMessage "Done" lines since the message itself is the
// evidence (spec §4.4 display-suppression rule).
func RenderSummary(results []ExecutedResult) string {
	summary := ""
	for _, r := range results {
		if r.Unavailable {
			summary += fmt.Sprintf("- %s: unavailable\n", r.Action.Type)
			continue
		}
		if r.Action.Type == "sendMessage" && r.Result.OK {
			continue
		}
		if r.Result.OK {
			summary += fmt.Sprintf("- %s: %s\n", r.Action.Type, r.Result.Summary)
		} else {
			summary += fmt.Sprintf("- %s: failed (%s)\n", r.Action.Type, r.Result.Error)
		}
	}
	return summary
}
