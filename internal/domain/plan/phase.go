// Package plan decomposes a plan markdown file into phases and runs them,
// grounded on the teacher's git-awareness (infrastructure/tool/git_tool.go)
// generalized into a snapshot-before/after-execution model, and on the
// teacher's infrastructure/prompt/codeintel packages for file-path
// heuristics over markdown.
package plan

import "time"

// PhaseKind is one of the three phase kinds spec §3 names.
type PhaseKind string

const (
	KindImplement PhaseKind = "implement"
	KindRead      PhaseKind = "read"
	KindAudit     PhaseKind = "audit"
)

// PhaseStatus tracks a phase's lifecycle.
type PhaseStatus string

const (
	StatusPending     PhaseStatus = "pending"
	StatusInProgress  PhaseStatus = "in-progress"
	StatusDone        PhaseStatus = "done"
	StatusFailed      PhaseStatus = "failed"
	StatusSkipped     PhaseStatus = "skipped"
	StatusAuditFailed PhaseStatus = "audit_failed"
)

// Phase is one unit of plan execution.
type Phase struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Kind          PhaseKind         `json:"kind"`
	Status        PhaseStatus       `json:"status"`
	Description   string            `json:"description"`
	DependsOn     []string          `json:"depends_on"`
	ContextFiles  []string          `json:"context_files"`
	ChangeSpec    string            `json:"change_spec,omitempty"`
	Output        string            `json:"output,omitempty"`
	Error         string            `json:"error,omitempty"`
	GitCommit     string            `json:"git_commit,omitempty"`
	ModifiedFiles []string          `json:"modified_files,omitempty"`
	FailureHashes map[string]string `json:"failure_hashes,omitempty"`
	// PreExistingFiles records which ModifiedFiles were present in the
	// pre-execution git diff snapshot (tracked) vs newly created by the
	// failed attempt (untracked), so a later retry knows whether to
	// `git checkout` or `git clean` each one.
	PreExistingFiles []string `json:"pre_existing_files,omitempty"`
}

// Phases is the sidecar state (markdown + JSON) for one plan.
type Phases struct {
	Version         int       `json:"version"`
	PlanID          string    `json:"plan_id"`
	PlanFile        string    `json:"plan_file"`
	PlanContentHash string    `json:"plan_content_hash"`
	PhaseList       []*Phase  `json:"phases"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ByID finds a phase by id, or nil.
func (p *Phases) ByID(id string) *Phase {
	for _, ph := range p.PhaseList {
		if ph.ID == id {
			return ph
		}
	}
	return nil
}

// AllDoneOrSkipped reports whether every phase has reached a terminal
// non-failing state, the precondition for closing the owning plan.
func (p *Phases) AllDoneOrSkipped() bool {
	for _, ph := range p.PhaseList {
		if ph.Status != StatusDone && ph.Status != StatusSkipped {
			return false
		}
	}
	return true
}

func dependsSatisfied(ph *Phase, byID map[string]*Phase) bool {
	for _, dep := range ph.DependsOn {
		d, ok := byID[dep]
		if !ok {
			return false
		}
		if d.Status != StatusDone && d.Status != StatusSkipped {
			return false
		}
	}
	return true
}

// NextPhaseResult is the outcome of GetNextPhase.
type NextPhaseResult struct {
	Phase         *Phase
	NothingToRun  bool
}

// GetNextPhase implements spec §4.7's priority: (a) any in-progress phase;
// (b) any failed phase; (c) first pending phase whose depends_on are all
// done or skipped. Otherwise nothing_to_run.
func GetNextPhase(phases *Phases) NextPhaseResult {
	byID := make(map[string]*Phase, len(phases.PhaseList))
	for _, ph := range phases.PhaseList {
		byID[ph.ID] = ph
	}
	for _, ph := range phases.PhaseList {
		if ph.Status == StatusInProgress {
			return NextPhaseResult{Phase: ph}
		}
	}
	for _, ph := range phases.PhaseList {
		if ph.Status == StatusFailed {
			return NextPhaseResult{Phase: ph}
		}
	}
	for _, ph := range phases.PhaseList {
		if ph.Status == StatusPending && dependsSatisfied(ph, byID) {
			return NextPhaseResult{Phase: ph}
		}
	}
	return NextPhaseResult{NothingToRun: true}
}
