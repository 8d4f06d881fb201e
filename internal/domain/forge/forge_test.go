package forge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/discoclaw/discoclaw/internal/domain/task"
)

type scriptedInvoker struct {
	draftText   string
	auditTexts  []string
	auditCalls  int
}

func (s *scriptedInvoker) InvokeText(sessionKey, model, prompt string, tools []string) (string, error) {
	if strings.Contains(sessionKey, ":auditor") {
		idx := s.auditCalls
		if idx >= len(s.auditTexts) {
			idx = len(s.auditTexts) - 1
		}
		s.auditCalls++
		return s.auditTexts[idx], nil
	}
	return s.draftText, nil
}

func TestCleanForge(t *testing.T) {
	dir := t.TempDir()
	invoker := &scriptedInvoker{
		draftText:  "Plan: Test feature\n\n## Objective\n\n## Scope\n\n## Changes\n\n## Risks\n\n## Testing\n\n## Audit Log\n\n## Implementation Notes\n",
		auditTexts: []string{"**Verdict:** Ready to approve."},
	}
	o := NewOrchestrator(Config{PlansDir: dir, DrafterModel: "capable", AuditorModel: "capable", MaxAuditRounds: 5}, invoker)

	var progressMsgs []string
	result := o.Run("Test feature", "", func(msg string, force bool) { progressMsgs = append(progressMsgs, msg) })

	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.PlanID != "plan-001" {
		t.Fatalf("expected plan-001, got %q", result.PlanID)
	}
	if result.Rounds != 1 {
		t.Fatalf("expected 1 round, got %d", result.Rounds)
	}
	if result.ReachedMaxRounds {
		t.Fatal("expected reached_max_rounds=false")
	}
	foundDraftComplete, foundForgeComplete := false, false
	for _, m := range progressMsgs {
		if m == "Draft complete" {
			foundDraftComplete = true
		}
		if m == "Forge complete" {
			foundForgeComplete = true
		}
	}
	if !foundDraftComplete || !foundForgeComplete {
		t.Fatalf("expected progress to include Draft complete and Forge complete, got %v", progressMsgs)
	}
	data, err := os.ReadFile(result.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "**Status:**") && !strings.Contains(string(data), "Plan: Test feature") {
		t.Fatalf("expected plan file on disk with drafted content, got: %s", data)
	}
}

func TestForgeMaxesOut(t *testing.T) {
	dir := t.TempDir()
	blockingAudit := "**Concern 1** **Severity: blocking** **Verdict:** Needs revision."
	invoker := &scriptedInvoker{
		draftText:  "Plan: Test\n\n## Objective\n\n## Scope\n\n## Changes\n\n## Risks\n\n## Testing\n\n## Audit Log\n\n## Implementation Notes\n",
		auditTexts: []string{blockingAudit, blockingAudit, blockingAudit},
	}
	o := NewOrchestrator(Config{PlansDir: dir, DrafterModel: "capable", AuditorModel: "capable", MaxAuditRounds: 3}, invoker)

	var progressMsgs []string
	result := o.Run("Test feature", "", func(msg string, force bool) { progressMsgs = append(progressMsgs, msg) })

	if result.Rounds != 3 {
		t.Fatalf("expected 3 rounds, got %d", result.Rounds)
	}
	if !result.ReachedMaxRounds {
		t.Fatal("expected reached_max_rounds=true")
	}
	found := false
	for _, m := range progressMsgs {
		if m == "Forge stopped after 3 audit rounds" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stop message in progress, got %v", progressMsgs)
	}
}

func TestForgeCreatesBackingTaskAndSyncsTitle(t *testing.T) {
	dir := t.TempDir()
	tasks, err := task.NewStore(filepath.Join(dir, "tasks.jsonl"), "ws")
	if err != nil {
		t.Fatal(err)
	}
	invoker := &scriptedInvoker{
		draftText:  "Plan: Better feature title\n\n## Objective\n\n## Scope\n\n## Changes\n\n## Risks\n\n## Testing\n\n## Audit Log\n\n## Implementation Notes\n",
		auditTexts: []string{"**Verdict:** Ready to approve."},
	}
	o := NewOrchestrator(Config{PlansDir: dir, DrafterModel: "capable", AuditorModel: "capable", MaxAuditRounds: 5, Tasks: tasks}, invoker)

	result := o.Run("raw description", "", func(string, bool) {})
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.TaskID == "" {
		t.Fatal("expected a backing task id")
	}
	rec, err := tasks.Get(result.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Title != "Better feature title" {
		t.Fatalf("expected task title synced to drafted title, got %q", rec.Title)
	}
}

func TestForgeDedupsByTitleAmongOpenTasks(t *testing.T) {
	dir := t.TempDir()
	tasks, err := task.NewStore(filepath.Join(dir, "tasks.jsonl"), "ws")
	if err != nil {
		t.Fatal(err)
	}
	existing, err := tasks.Create("Test feature", "Test feature", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	invoker := &scriptedInvoker{
		draftText:  "Plan: Test feature\n\n## Objective\n\n## Scope\n\n## Changes\n\n## Risks\n\n## Testing\n\n## Audit Log\n\n## Implementation Notes\n",
		auditTexts: []string{"**Verdict:** Ready to approve."},
	}
	o := NewOrchestrator(Config{PlansDir: dir, DrafterModel: "capable", AuditorModel: "capable", MaxAuditRounds: 5, Tasks: tasks}, invoker)

	result := o.Run("Test feature", "", func(string, bool) {})
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.TaskID != existing.ID {
		t.Fatalf("expected dedup to reuse task %s, got %s", existing.ID, result.TaskID)
	}
}

func TestForgeConcurrencyRejected(t *testing.T) {
	dir := t.TempDir()
	invoker := &scriptedInvoker{draftText: "Plan: x\n", auditTexts: []string{"**Verdict:** Ready to approve."}}
	o := NewOrchestrator(Config{PlansDir: dir, DrafterModel: "capable", AuditorModel: "capable"}, invoker)

	if err := o.tryStart("plan-001", filepath.Join(dir, "plan-001-x.md")); err != nil {
		t.Fatal(err)
	}
	secondErr := o.tryStart("plan-002", filepath.Join(dir, "plan-002-y.md"))
	if secondErr == nil {
		t.Fatal("expected second concurrent start to fail")
	}
}
