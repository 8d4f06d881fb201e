// Package forge drives the drafter->auditor->[revise->auditor]* loop
// that produces a plan markdown file, new relative to the teacher (which
// has no drafter/auditor loop), grounded on the teacher's AgentLoop
// session-key conventions and other_examples planner files for the
// round/severity-loop shape.
package forge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/discoclaw/discoclaw/internal/domain/planid"
	"github.com/discoclaw/discoclaw/internal/domain/task"
	appErrors "github.com/discoclaw/discoclaw/pkg/errors"
)

// Invoker is the minimal runtime surface forge needs: a single blocking
// call that returns the accumulated final text for a prompt under a
// session key. The message pipeline's streaming concerns (placeholder
// edits, interleaved tool events) are not forge's responsibility; a
// caller adapts runtime.Adapter streaming into this blocking shape.
type Invoker interface {
	InvokeText(sessionKey, model, prompt string, tools []string) (string, error)
}

// ProgressFunc receives progress messages; force indicates a terminal
// message a throttled listener must flush immediately.
type ProgressFunc func(message string, force bool)

// Config parameterizes one Orchestrator.
type Config struct {
	PlansDir       string
	DrafterModel   string
	AuditorModel   string
	MaxAuditRounds int
	PlanTemplate   string      // fallback template body when .plan-template.md is absent
	Tasks          *task.Store // backing task store for the dedup/create/title-sync rule; nil disables it
}

// Result is forge's contract return shape.
type Result struct {
	PlanID           string
	TaskID           string
	FilePath         string
	Rounds           int
	ReachedMaxRounds bool
	FinalVerdict     string // "READY", "CANCELLED", "MAX_ROUNDS"
	PlanSummary      string
	Error            error
}

// Orchestrator coordinates one logical forge instance; state is
// serialised so at most one run/resume executes at a time.
type Orchestrator struct {
	cfg     Config
	invoker Invoker

	mu              sync.Mutex
	running         bool
	cancelRequested bool
	currentPlanID   string
	currentPlanPath string
}

func NewOrchestrator(cfg Config, invoker Invoker) *Orchestrator {
	if cfg.MaxAuditRounds <= 0 {
		cfg.MaxAuditRounds = 5
	}
	return &Orchestrator{cfg: cfg, invoker: invoker}
}

func (o *Orchestrator) tryStart(planID, planPath string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return &appErrors.ConcurrentForgeError{TargetKey: o.currentPlanID}
	}
	o.running = true
	o.cancelRequested = false
	o.currentPlanID = planID
	o.currentPlanPath = planPath
	return nil
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	o.currentPlanID = ""
	o.currentPlanPath = ""
}

// RequestCancel flips the cancel flag; the next round boundary returns a
// CANCELLED verdict without aborting an in-progress invocation forcibly.
func (o *Orchestrator) RequestCancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelRequested = true
}

func (o *Orchestrator) isCancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelRequested
}

func drafterSessionKey(planID, model string) string { return planID + ":" + model + ":drafter" }
func auditorSessionKey(planID, model string) string { return planID + ":" + model + ":auditor" }

// Run drives a fresh drafter->auditor loop for description, writing a
// brand-new plan file. existingTaskID, when non-empty, names a task to
// reuse instead of deduping by title; per spec §4.6 it gets a "plan"
// label instead of a fresh task record.
func (o *Orchestrator) Run(description, existingTaskID string, progress ProgressFunc) Result {
	planID, err := planid.Next(o.cfg.PlansDir)
	if err != nil {
		return Result{Error: err}
	}
	if err := o.tryStart(planID, ""); err != nil {
		return Result{Error: err}
	}
	defer o.finish()

	backingTask, err := o.resolveTask(description, existingTaskID)
	if err != nil {
		return Result{PlanID: planID, Error: err}
	}
	var taskID string
	if backingTask != nil {
		taskID = backingTask.ID
	}

	if progress != nil {
		progress(fmt.Sprintf("Starting draft for %s", planID), false)
	}

	draftKey := drafterSessionKey(planID, o.cfg.DrafterModel)
	draftPrompt := o.buildDrafterPrompt(description, planID)
	draftText, err := o.invoker.InvokeText(draftKey, o.cfg.DrafterModel, draftPrompt, []string{"Read", "Glob", "Grep"})
	if err != nil {
		if progress != nil {
			progress("Forge failed", true)
		}
		return Result{PlanID: planID, TaskID: taskID, Error: err}
	}

	title := extractTitle(draftText, description)
	o.syncTaskTitle(backingTask, description, title)

	filePath := filepath.Join(o.cfg.PlansDir, planid.FileName(planID, title))
	if err := os.MkdirAll(o.cfg.PlansDir, 0o755); err != nil {
		return Result{PlanID: planID, TaskID: taskID, Error: err}
	}
	if err := os.WriteFile(filePath, []byte(draftText), 0o644); err != nil {
		return Result{PlanID: planID, TaskID: taskID, Error: err}
	}

	if progress != nil {
		progress("Draft complete", false)
	}

	result := o.auditLoop(planID, filePath, title, draftText, progress)
	result.TaskID = taskID
	return result
}

// resolveTask implements spec §4.6 step 1: reuse existingTaskID if
// supplied (applying a "plan" label instead of creating a new task),
// otherwise dedup by exact-case-insensitive title among non-closed
// tasks, creating a new open task only when neither applies. A nil
// Tasks store disables the rule entirely, returning no backing task.
func (o *Orchestrator) resolveTask(description, existingTaskID string) (*task.Record, error) {
	if o.cfg.Tasks == nil {
		return nil, nil
	}
	if existingTaskID != "" {
		t, err := o.cfg.Tasks.Get(existingTaskID)
		if err != nil {
			return nil, err
		}
		return o.cfg.Tasks.AddLabel(t.ID, "plan")
	}
	if t := o.cfg.Tasks.FindOpenByTitle(description); t != nil {
		return t, nil
	}
	return o.cfg.Tasks.Create(description, description, nil, "")
}

// syncTaskTitle implements spec §4.6 step 3: once the drafter names a
// title distinct from the raw description that seeded the task record,
// the task title is updated to match.
func (o *Orchestrator) syncTaskTitle(t *task.Record, description, draftedTitle string) {
	if t == nil || draftedTitle == "" || draftedTitle == description || draftedTitle == t.Title {
		return
	}
	_, _ = o.cfg.Tasks.Update(t.ID, func(r *task.Record) { r.Title = draftedTitle })
}

// Resume continues the audit loop on a plan already on disk, only
// accepting plans whose header status is REVIEW.
func (o *Orchestrator) Resume(planID, filePath, title string, progress ProgressFunc) Result {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return Result{PlanID: planID, Error: err}
	}
	status := extractStatus(string(content))
	switch status {
	case "IMPLEMENTING":
		return Result{PlanID: planID, Error: appErrors.NewConflictError(fmt.Sprintf("plan %s is currently being implemented", planID))}
	case "APPROVED":
		return Result{PlanID: planID, Error: appErrors.NewConflictError(fmt.Sprintf("plan %s is approved; downgrade first", planID))}
	case "REVIEW":
		// proceed
	default:
		return Result{PlanID: planID, Error: appErrors.NewConflictError(fmt.Sprintf("plan %s has status %q, expected REVIEW", planID, status))}
	}
	if err := validateSections(string(content)); err != nil {
		return Result{PlanID: planID, Error: err}
	}

	if err := o.tryStart(planID, filePath); err != nil {
		return Result{PlanID: planID, Error: err}
	}
	defer o.finish()

	return o.auditLoop(planID, filePath, title, string(content), progress)
}

func (o *Orchestrator) auditLoop(planID, filePath, title, planContent string, progress ProgressFunc) Result {
	round := 0

	for round < o.cfg.MaxAuditRounds {
		if o.isCancelled() {
			if progress != nil {
				progress("Forge cancelled", true)
			}
			return Result{PlanID: planID, FilePath: filePath, Rounds: round, FinalVerdict: "CANCELLED", PlanSummary: title}
		}

		round++
		if progress != nil {
			progress(fmt.Sprintf("Audit round %d/%d", round, o.cfg.MaxAuditRounds), false)
		}

		auditKey := auditorSessionKey(planID, o.cfg.AuditorModel)
		auditPrompt := o.buildAuditorPrompt(planContent, round)
		auditText, err := o.invoker.InvokeText(auditKey, o.cfg.AuditorModel, auditPrompt, []string{"Read", "Glob", "Grep"})
		if err != nil {
			if progress != nil {
				progress("Forge failed", true)
			}
			return Result{PlanID: planID, FilePath: filePath, Rounds: round, Error: err}
		}

		verdict := ParseVerdict(auditText)
		planContent = appendAuditLog(planContent, round, auditText)
		if err := os.WriteFile(filePath, []byte(planContent), 0o644); err != nil {
			return Result{PlanID: planID, FilePath: filePath, Rounds: round, Error: err}
		}

		if progress != nil {
			if verdict.MaxSeverity >= SeverityMedium {
				progress(fmt.Sprintf("%s concerns found", verdict.MaxSeverity), false)
			}
		}

		if !verdict.ShouldLoop {
			if progress != nil {
				progress("Forge complete", true)
			}
			return Result{PlanID: planID, FilePath: filePath, Rounds: round, ReachedMaxRounds: false, FinalVerdict: "READY", PlanSummary: title}
		}

		if round >= o.cfg.MaxAuditRounds {
			break
		}

		revisePrompt := o.buildRevisionPrompt(planContent, auditText)
		draftKey := drafterSessionKey(planID, o.cfg.DrafterModel)
		revised, err := o.invoker.InvokeText(draftKey, o.cfg.DrafterModel, revisePrompt, []string{"Read", "Write", "Edit", "Glob", "Grep"})
		if err != nil {
			if progress != nil {
				progress("Forge failed", true)
			}
			return Result{PlanID: planID, FilePath: filePath, Rounds: round, Error: err}
		}
		planContent = revised
		if err := os.WriteFile(filePath, []byte(planContent), 0o644); err != nil {
			return Result{PlanID: planID, FilePath: filePath, Rounds: round, Error: err}
		}
	}

	if progress != nil {
		progress(fmt.Sprintf("Forge stopped after %d audit rounds", round), true)
	}
	return Result{PlanID: planID, FilePath: filePath, Rounds: round, ReachedMaxRounds: true, FinalVerdict: "MAX_ROUNDS", PlanSummary: title}
}

func (o *Orchestrator) buildDrafterPrompt(description, planID string) string {
	template := o.cfg.PlanTemplate
	if template == "" {
		template = defaultPlanTemplate
	}
	return fmt.Sprintf("Draft plan %s for the following request:\n\n%s\n\nUse this template:\n\n%s", planID, description, template)
}

func (o *Orchestrator) buildAuditorPrompt(planContent string, round int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Audit round %d.\n", round)
	if round >= 2 {
		sb.WriteString("This is a revision; focus on whether prior concerns were addressed.\n")
	}
	sb.WriteString("Review the following plan and report concerns as:\n")
	sb.WriteString("**Concern N:** ... **Severity: blocking|medium|minor|suggestion**\n")
	sb.WriteString("End with **Verdict:** Needs revision. or **Verdict:** Ready to approve.\n\n")
	sb.WriteString(planContent)
	return sb.String()
}

func (o *Orchestrator) buildRevisionPrompt(planContent, auditText string) string {
	return fmt.Sprintf("Revise the plan below to address the audit concerns.\n\nAudit:\n%s\n\nCurrent plan:\n%s", auditText, planContent)
}

func appendAuditLog(planContent string, round int, auditText string) string {
	entry := fmt.Sprintf("\n### Review %d\n\n%s\n", round, auditText)
	idx := strings.Index(planContent, "## Audit Log")
	if idx == -1 {
		return planContent + "\n## Audit Log\n" + entry
	}
	// Insert after the "## Audit Log" heading line, before any following
	// section heading, preserving "## Implementation Notes" at the end.
	nextSectionIdx := strings.Index(planContent[idx+len("## Audit Log"):], "\n## ")
	if nextSectionIdx == -1 {
		return planContent + entry
	}
	insertAt := idx + len("## Audit Log") + nextSectionIdx
	return planContent[:insertAt] + entry + planContent[insertAt:]
}

func extractTitle(draftText, fallback string) string {
	for _, line := range strings.Split(draftText, "\n") {
		if strings.HasPrefix(line, "# Plan:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# Plan:"))
		}
		if strings.HasPrefix(line, "Plan:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Plan:"))
		}
	}
	return fallback
}

func extractStatus(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "**Status:**") {
			return strings.TrimSpace(strings.TrimPrefix(line, "**Status:**"))
		}
	}
	return ""
}

var requiredSections = []string{"## Objective", "## Scope", "## Changes", "## Risks", "## Testing", "## Audit Log", "## Implementation Notes"}

func validateSections(content string) error {
	var missing []string
	for _, s := range requiredSections {
		if !strings.Contains(content, s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return appErrors.NewInvalidInputError("plan has structural issues: missing sections " + strings.Join(missing, ", "))
	}
	return nil
}

const defaultPlanTemplate = `## Objective

## Scope

## Changes

## Risks

## Testing

## Audit Log

## Implementation Notes
`
