package main

import (
	"fmt"
	"time"

	"github.com/discoclaw/discoclaw/internal/domain/action"
	"github.com/discoclaw/discoclaw/internal/domain/cron"
	"github.com/discoclaw/discoclaw/internal/domain/entity"
	"github.com/discoclaw/discoclaw/internal/domain/forge"
	"github.com/discoclaw/discoclaw/internal/domain/plan"
	"github.com/discoclaw/discoclaw/internal/domain/task"
)

// registerActionHandlers binds a concrete Handler closing over app's wired
// subsystems to each catalog action type except imageGenerate, voiceSpeak
// and configSet, which get no handler here. Grounded on the teacher's
// tool.Registry registration block in cmd/gateway/main.go.
func registerActionHandlers(executor *action.Executor, app *App) {
	executor.RegisterHandler("sendMessage", handleSendMessage(app))
	executor.RegisterHandler("editMessage", handleEditMessage(app))
	executor.RegisterHandler("createChannel", handleCreateChannel(app))
	executor.RegisterHandler("archiveChannel", handleArchiveChannel(app))
	executor.RegisterHandler("banUser", handleBanUser(app))
	executor.RegisterHandler("timeoutUser", handleTimeoutUser(app))
	executor.RegisterHandler("createPoll", handleCreatePoll(app))
	executor.RegisterHandler("taskCreate", handleTaskCreate())
	executor.RegisterHandler("taskList", handleTaskList())
	executor.RegisterHandler("taskClose", handleTaskClose())
	executor.RegisterHandler("cronCreate", handleCronCreate(app))
	executor.RegisterHandler("cronList", handleCronList())
	executor.RegisterHandler("cronDelete", handleCronDelete())
	executor.RegisterHandler("setBotProfile", handleSetBotProfile(app))
	executor.RegisterHandler("forgeRun", handleForgeRun())
	executor.RegisterHandler("forgeResume", handleForgeResume())
	executor.RegisterHandler("planPhasesRun", handlePlanPhasesRun())
	executor.RegisterHandler("memoryAdd", handleMemoryAdd())
	executor.RegisterHandler("memoryQuery", handleMemoryQuery())
	executor.RegisterHandler("deferPrompt", handleDeferPrompt(app))
}

func strField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func strSliceField(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func errResult(err error) action.Result {
	return action.Result{OK: false, Error: err.Error()}
}

func handleSendMessage(app *App) action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		text := strField(payload, "text")
		if _, err := app.chat.PostMessage(ctx.ChannelID, text); err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: "sent"}
	}
}

func handleEditMessage(app *App) action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		messageID := strField(payload, "message_id")
		text := strField(payload, "text")
		if err := app.chat.EditMessage(ctx.ChannelID, messageID, text); err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: "edited"}
	}
}

func handleCreateChannel(app *App) action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		name := strField(payload, "name")
		parent := strField(payload, "parent_category_id")
		id, err := app.chat.CreateChannel(ctx.GuildID, name, parent)
		if err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("created channel %s", id)}
	}
}

func handleArchiveChannel(app *App) action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		channelID := strField(payload, "channel_id")
		if channelID == "" {
			channelID = ctx.ChannelID
		}
		if err := app.chat.ArchiveChannel(channelID); err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: "archived"}
	}
}

func handleBanUser(app *App) action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		userID := strField(payload, "user_id")
		reason := strField(payload, "reason")
		if err := app.chat.BanUser(ctx.GuildID, userID, reason); err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("banned %s", userID)}
	}
}

func handleTimeoutUser(app *App) action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		userID := strField(payload, "user_id")
		reason := strField(payload, "reason")
		seconds, _ := payload["duration_seconds"].(float64)
		if err := app.chat.TimeoutUser(ctx.GuildID, userID, time.Duration(seconds)*time.Second, reason); err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("timed out %s", userID)}
	}
}

func handleCreatePoll(app *App) action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		question := strField(payload, "question")
		options := strSliceField(payload, "options")
		if err := app.chat.CreatePoll(ctx.ChannelID, question, options); err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: "poll posted"}
	}
}

func handleSetBotProfile(app *App) action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		name := strField(payload, "name")
		avatarURL := strField(payload, "avatar_url")
		if err := app.chat.SetBotProfile(name, avatarURL); err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: "profile updated"}
	}
}

func handleTaskCreate() action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		store, ok := subs.Task.(*task.Store)
		if !ok || store == nil {
			return action.Result{OK: false, Error: "task subsystem unavailable"}
		}
		rec, err := store.Create(strField(payload, "title"), strField(payload, "description"), strSliceField(payload, "labels"), ctx.ThreadParentID)
		if err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("task %s created", rec.ID)}
	}
}

func handleTaskList() action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		store, ok := subs.Task.(*task.Store)
		if !ok || store == nil {
			return action.Result{OK: false, Error: "task subsystem unavailable"}
		}
		status := task.Status(strField(payload, "status"))
		records := store.List(status)
		return action.Result{OK: true, Summary: fmt.Sprintf("%d tasks", len(records)), FollowUp: true, FollowUpData: records}
	}
}

func handleTaskClose() action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		store, ok := subs.Task.(*task.Store)
		if !ok || store == nil {
			return action.Result{OK: false, Error: "task subsystem unavailable"}
		}
		rec, err := store.SetStatus(strField(payload, "task_id"), task.StatusClosed)
		if err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("task %s closed", rec.ID)}
	}
}

func handleCronCreate(app *App) action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		scheduler, ok := subs.Cron.(*cron.Scheduler)
		if !ok || scheduler == nil {
			return action.Result{OK: false, Error: "cron subsystem unavailable"}
		}
		title := strField(payload, "title")
		schedule := strField(payload, "schedule")
		prompt := strField(payload, "prompt")
		thread, err := app.chat.CreateThread(app.scaffold.CronForumID, title, schedule+"\n"+prompt, strSliceField(payload, "tags"))
		if err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("cron thread %s created", thread.ID)}
	}
}

func handleCronList() action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		scheduler, ok := subs.Cron.(*cron.Scheduler)
		if !ok || scheduler == nil {
			return action.Result{OK: false, Error: "cron subsystem unavailable"}
		}
		jobs := scheduler.Jobs()
		return action.Result{OK: true, Summary: fmt.Sprintf("%d cron jobs", len(jobs)), FollowUp: true, FollowUpData: jobs}
	}
}

func handleCronDelete() action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		scheduler, ok := subs.Cron.(*cron.Scheduler)
		if !ok || scheduler == nil {
			return action.Result{OK: false, Error: "cron subsystem unavailable"}
		}
		threadID := strField(payload, "thread_id")
		remaining := make([]*cron.Job, 0, len(scheduler.Jobs()))
		for _, j := range scheduler.Jobs() {
			if j.ThreadID != threadID {
				remaining = append(remaining, j)
			}
		}
		scheduler.SetJobs(remaining)
		return action.Result{OK: true, Summary: "cron job deleted"}
	}
}

func handleForgeRun() action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		orch, ok := subs.Forge.(*forge.Orchestrator)
		if !ok || orch == nil {
			return action.Result{OK: false, Error: "forge subsystem unavailable"}
		}
		result := orch.Run(strField(payload, "description"), strField(payload, "existing_task_id"), func(string, bool) {})
		if result.Error != nil {
			return errResult(result.Error)
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("plan %s: %s", result.PlanID, result.FinalVerdict)}
	}
}

func handleForgeResume() action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		orch, ok := subs.Forge.(*forge.Orchestrator)
		if !ok || orch == nil {
			return action.Result{OK: false, Error: "forge subsystem unavailable"}
		}
		result := orch.Resume(strField(payload, "plan_id"), strField(payload, "file_path"), strField(payload, "title"), func(string, bool) {})
		if result.Error != nil {
			return errResult(result.Error)
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("plan %s: %s", result.PlanID, result.FinalVerdict)}
	}
}

func handlePlanPhasesRun() action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		runner, ok := subs.Plan.(*plan.Runner)
		if !ok || runner == nil {
			return action.Result{OK: false, Error: "plan subsystem unavailable"}
		}
		step := runner.RunNext(strField(payload, "plan_file"), strField(payload, "plan_id"))
		if step.Error != nil {
			return errResult(step.Error)
		}
		if step.Stale {
			return action.Result{OK: false, Error: "plan file changed since the last run; refresh and retry"}
		}
		if step.NothingToRun {
			return action.Result{OK: true, Summary: "no remaining phases"}
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("ran phase %s", step.Phase.ID)}
	}
}

func handleMemoryAdd() action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		mem, ok := subs.Memory.(memorySubsystem)
		if !ok || mem.durable == nil {
			return action.Result{OK: false, Error: "memory subsystem unavailable"}
		}
		userID := strField(payload, "user_id")
		item, err := mem.durable.Add(userID, strField(payload, "kind"), strField(payload, "text"), strSliceField(payload, "tags"), entity.MemorySource{
			Type: "action", ChannelID: ctx.ChannelID, GuildID: ctx.GuildID, MessageID: ctx.MessageID,
		})
		if err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("memory item %s saved", item.ID)}
	}
}

func handleMemoryQuery() action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		mem, ok := subs.Memory.(memorySubsystem)
		if !ok || mem.durable == nil {
			return action.Result{OK: false, Error: "memory subsystem unavailable"}
		}
		userID := strField(payload, "user_id")
		items, err := mem.durable.Query(userID, strSliceField(payload, "tags"))
		if err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("%d memory items", len(items)), FollowUp: true, FollowUpData: items}
	}
}

func handleDeferPrompt(app *App) action.Handler {
	return func(ctx action.Context, subs *action.SubsystemContexts, payload map[string]any) action.Result {
		seconds, _ := payload["delay_seconds"].(float64)
		prompt := strField(payload, "prompt")
		id, err := app.deferSched.Schedule(ctx.ChannelID, prompt, time.Now().Add(time.Duration(seconds)*time.Second))
		if err != nil {
			return errResult(err)
		}
		return action.Result{OK: true, Summary: fmt.Sprintf("deferred as %s", id)}
	}
}
