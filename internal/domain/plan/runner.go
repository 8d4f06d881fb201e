package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/discoclaw/discoclaw/internal/domain/forge"
	"github.com/discoclaw/discoclaw/internal/domain/planid"
	"github.com/discoclaw/discoclaw/internal/infrastructure/gitsnapshot"
	appErrors "github.com/discoclaw/discoclaw/pkg/errors"
)

// Invoker mirrors forge.Invoker: a blocking call returning accumulated
// text for a prompt under a session key, letting this package stay
// decoupled from the streaming runtime protocol.
type Invoker interface {
	InvokeText(sessionKey, model, prompt string, tools []string) (string, error)
}

// toolsForKind returns the allowed tool set for a phase kind, per spec
// §4.7: implement phases get write access, read/audit phases are
// read-only.
func toolsForKind(kind PhaseKind) []string {
	switch kind {
	case KindImplement:
		return []string{"Read", "Write", "Edit", "Glob", "Grep", "Bash"}
	default:
		return []string{"Read", "Glob", "Grep"}
	}
}

// RunnerConfig parameterizes one Runner.
type RunnerConfig struct {
	WorkspaceDir        string
	Model               string
	MaxAuditFixAttempts int // default 2
}

// Runner executes a plan's phases one at a time, applying git
// snapshotting, retry-safety, and audit-fix-loop rules.
type Runner struct {
	cfg      RunnerConfig
	invoker  Invoker
	snapshot *gitsnapshot.Snapshotter
}

func NewRunner(cfg RunnerConfig, invoker Invoker) *Runner {
	if cfg.MaxAuditFixAttempts <= 0 {
		cfg.MaxAuditFixAttempts = 2
	}
	return &Runner{cfg: cfg, invoker: invoker, snapshot: gitsnapshot.New(cfg.WorkspaceDir)}
}

// StepResult is the outcome of running a single phase.
type StepResult struct {
	Phase        *Phase
	NothingToRun bool
	Stale        bool
	Error        error
}

// RunNext loads the plan content and its phases sidecar, verifies
// staleness, selects the next phase via GetNextPhase, and executes it.
func (r *Runner) RunNext(planFile, planID string) StepResult {
	content, err := os.ReadFile(planFile)
	if err != nil {
		return StepResult{Error: err}
	}

	stem := planid.PhasesStem(planFile)
	phases, err := LoadPhases(stem)
	if err != nil {
		return StepResult{Error: err}
	}
	if phases == nil {
		phases = Decompose(string(content), planID, planFile, 5)
		if err := SavePhases(stem, phases); err != nil {
			return StepResult{Error: err}
		}
	}

	if CheckStaleness(phases.PlanContentHash, string(content)) {
		return StepResult{Stale: true, Error: &appErrors.StalePlanError{PlanID: planID, ExpectedHash: phases.PlanContentHash, ActualHash: ContentHash(string(content))}}
	}

	next := GetNextPhase(phases)
	if next.NothingToRun {
		return StepResult{NothingToRun: true}
	}

	r.runPhase(next.Phase, phases.PlanID)
	if err := SavePhases(stem, phases); err != nil {
		return StepResult{Phase: next.Phase, Error: err}
	}
	return StepResult{Phase: next.Phase}
}

// runPhase executes one phase in place, mutating its Status/Error/
// ModifiedFiles/FailureHashes/PreExistingFiles fields.
func (r *Runner) runPhase(ph *Phase, planID string) {
	if ph.Status == StatusFailed {
		if !r.retryRevert(ph) {
			ph.Error = (&appErrors.RetryBlockedError{PlanID: planID, PhaseID: ph.ID}).Error()
			return
		}
	}

	ph.Status = StatusInProgress

	preSnapshot := map[string]bool{}
	if r.snapshot.Available() {
		if s, err := r.snapshot.DirtySet(); err == nil {
			preSnapshot = s
		}
	}

	sessionKey := ph.ID + ":" + r.cfg.Model
	prompt := r.buildPhasePrompt(ph)
	tools := toolsForKind(ph.Kind)

	output, err := r.invoker.InvokeText(sessionKey, r.cfg.Model, prompt, tools)
	if gateErr, ok := err.(*appErrors.ToolGateError); ok {
		ph.Status = StatusFailed
		ph.Error = fmt.Sprintf("Destructive tool call blocked: %s", gateErr.Reason)
		return
	}
	if err != nil {
		ph.Status = StatusFailed
		ph.Error = err.Error()
		r.recordFailureState(ph, preSnapshot)
		return
	}
	ph.Output = output

	if r.snapshot.Available() {
		postSnapshot, err := r.snapshot.DirtySet()
		if err == nil {
			ph.ModifiedFiles = gitsnapshot.Diff(preSnapshot, postSnapshot)
		}
	}

	if ph.Kind == KindAudit {
		r.runAuditPhase(ph, planID)
		return
	}

	r.finishDone(ph, planID)
}

// runAuditPhase parses the audit verdict and, if it calls for loop-back,
// invokes an implement-fix round with a restricted tool set (no Bash),
// up to MaxAuditFixAttempts before rolling back entirely.
func (r *Runner) runAuditPhase(ph *Phase, planID string) {
	verdict := forge.ParseVerdict(ph.Output)
	if !forge.PhaseShouldLoop(verdict) {
		r.finishDone(ph, planID)
		return
	}

	attempts := 0
	for attempts < r.cfg.MaxAuditFixAttempts {
		attempts++
		fixPrompt := fmt.Sprintf("Address the following audit findings without broad rewrites:\n\n%s", ph.Output)
		fixTools := []string{"Read", "Write", "Edit", "Glob", "Grep"}
		fixOutput, err := r.invoker.InvokeText(ph.ID+":fix", r.cfg.Model, fixPrompt, fixTools)
		if err != nil {
			ph.Status = StatusFailed
			ph.Error = err.Error()
			return
		}

		reauditPrompt := fmt.Sprintf("Re-audit after the following fix:\n\n%s", fixOutput)
		reauditOutput, err := r.invoker.InvokeText(ph.ID+":audit", r.cfg.Model, reauditPrompt, []string{"Read", "Glob", "Grep"})
		if err != nil {
			ph.Status = StatusFailed
			ph.Error = err.Error()
			return
		}
		ph.Output = reauditOutput
		verdict = forge.ParseVerdict(reauditOutput)
		if !forge.PhaseShouldLoop(verdict) {
			r.finishDone(ph, planID)
			return
		}
	}

	if r.snapshot.Available() {
		_ = r.snapshot.RollbackAll()
	}
	ph.Status = StatusAuditFailed
	ph.Error = fmt.Sprintf("audit fix loop exhausted after %d attempts", attempts)
}

func (r *Runner) finishDone(ph *Phase, planID string) {
	if r.snapshot.Available() && len(ph.ModifiedFiles) > 0 {
		hash, err := r.snapshot.CommitPhase(planID, ph.ID, ph.Title, ph.ModifiedFiles)
		if err == nil {
			ph.GitCommit = hash
		}
	}
	ph.Status = StatusDone
	ph.Error = ""
}

// recordFailureState hashes ph.ModifiedFiles at failure time and records
// which were pre-existing (tracked) vs newly created (untracked), so a
// later retry knows whether to revert or remove each one.
func (r *Runner) recordFailureState(ph *Phase, preSnapshot map[string]bool) {
	if !r.snapshot.Available() {
		return
	}
	postSnapshot, err := r.snapshot.DirtySet()
	if err != nil {
		return
	}
	modified := gitsnapshot.Diff(preSnapshot, postSnapshot)
	ph.ModifiedFiles = modified
	ph.FailureHashes = make(map[string]string, len(modified))
	var preExisting []string
	for _, f := range modified {
		full := filepath.Join(r.cfg.WorkspaceDir, f)
		if hash, err := gitsnapshot.HashFile(full); err == nil {
			ph.FailureHashes[f] = hash
		}
		if preSnapshot[f] {
			preExisting = append(preExisting, f)
		}
	}
	ph.PreExistingFiles = preExisting
}

// retryRevert implements spec §4.7's retry-safety rule: for each
// modified file, if its current content hash still matches the recorded
// failure hash (no out-of-band edits since the failed attempt), revert
// it; tracked files are checked out, untracked ones are cleaned. A phase
// missing either modified_files or failure_hashes cannot be safely
// retried and is blocked.
func (r *Runner) retryRevert(ph *Phase) bool {
	if len(ph.ModifiedFiles) == 0 || ph.FailureHashes == nil {
		return false
	}
	preExisting := make(map[string]bool, len(ph.PreExistingFiles))
	for _, f := range ph.PreExistingFiles {
		preExisting[f] = true
	}
	for _, f := range ph.ModifiedFiles {
		expected, ok := ph.FailureHashes[f]
		if !ok {
			return false
		}
		full := filepath.Join(r.cfg.WorkspaceDir, f)
		current, err := gitsnapshot.HashFile(full)
		if err != nil {
			continue // file already gone, nothing to revert
		}
		if current != expected {
			continue // modified out of band since failure, leave it alone
		}
		if preExisting[f] {
			_ = r.snapshot.RevertTracked(f)
		} else {
			_ = r.snapshot.RemoveUntracked(f)
		}
	}
	ph.ModifiedFiles = nil
	ph.FailureHashes = nil
	ph.PreExistingFiles = nil
	return true
}

func (r *Runner) buildPhasePrompt(ph *Phase) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Phase %s: %s\n\n", ph.ID, ph.Title)
	if ph.Description != "" {
		sb.WriteString(ph.Description)
		sb.WriteString("\n\n")
	}
	if len(ph.ContextFiles) > 0 {
		sb.WriteString("Context files:\n")
		for _, f := range ph.ContextFiles {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}
	switch ph.Kind {
	case KindAudit:
		sb.WriteString("\nAudit the changes made so far. Report concerns with severity tags and a verdict line.\n")
	case KindRead:
		sb.WriteString("\nRead and summarize the relevant context; no file modifications.\n")
	}
	return sb.String()
}
