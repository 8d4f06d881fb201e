package plan

import "testing"

const samplePlanWithChanges = `# Plan: Add bar

**ID:** plan-003
**Task:** ws-001
**Status:** DRAFT

## Objective

Add bar to foo.

## Scope

Small change.

## Changes

- ` + "`src/foo.ts`" + ` — add bar
- ` + "`src/foo.test.ts`" + ` — add tests

## Risks

None.

## Testing

Unit tests.

## Audit Log

## Implementation Notes
`

func TestDecomposeTwoFilesAndAudit(t *testing.T) {
	phases := Decompose(samplePlanWithChanges, "plan-003", "workspace/plans/plan-003-add-bar.md", 5)
	if len(phases.PhaseList) != 2 {
		t.Fatalf("expected 2 phases, got %d: %+v", len(phases.PhaseList), phases.PhaseList)
	}
	implement := phases.PhaseList[0]
	if implement.ID != "phase-1" || implement.Kind != KindImplement {
		t.Fatalf("expected phase-1 implement, got %+v", implement)
	}
	if len(implement.DependsOn) != 0 {
		t.Fatalf("expected phase-1 to have no dependencies, got %v", implement.DependsOn)
	}
	wantFiles := map[string]bool{"src/foo.ts": true, "src/foo.test.ts": true}
	if len(implement.ContextFiles) != 2 {
		t.Fatalf("expected 2 context files, got %v", implement.ContextFiles)
	}
	for _, f := range implement.ContextFiles {
		if !wantFiles[f] {
			t.Fatalf("unexpected context file %q", f)
		}
	}

	audit := phases.PhaseList[1]
	if audit.ID != "phase-2" || audit.Kind != KindAudit {
		t.Fatalf("expected phase-2 audit, got %+v", audit)
	}
	if len(audit.DependsOn) != 1 || audit.DependsOn[0] != "phase-1" {
		t.Fatalf("expected phase-2 to depend on phase-1, got %v", audit.DependsOn)
	}
}

func TestExtractFilePathsNormalizesWorkspaceBasenames(t *testing.T) {
	section := "- `MEMORY.md` — note the new behavior\n- `src/foo.ts` — implement it\n"
	files := extractFilePaths(section)
	want := map[string]bool{"workspace/MEMORY.md": true, "src/foo.ts": true}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	for _, f := range files {
		if !want[f] {
			t.Fatalf("unexpected file %q in %v", f, files)
		}
	}
}

func TestLooksLikePathRejectsUnknownAllCapsTokens(t *testing.T) {
	if looksLikePath("TODO") {
		t.Fatal("expected an unrecognized all-caps token to not look like a path")
	}
}

func TestDecomposeNoFilesFallsBackToReadImplementAudit(t *testing.T) {
	plan := "# Plan: x\n\n## Objective\n\n## Scope\n\n## Changes\n\nNo files yet.\n\n## Risks\n\n## Testing\n\n## Audit Log\n\n## Implementation Notes\n"
	phases := Decompose(plan, "plan-001", "workspace/plans/plan-001-x.md", 5)
	if len(phases.PhaseList) != 3 {
		t.Fatalf("expected read/implement/audit phases, got %d", len(phases.PhaseList))
	}
	if phases.PhaseList[0].Kind != KindRead || phases.PhaseList[1].Kind != KindImplement || phases.PhaseList[2].Kind != KindAudit {
		t.Fatalf("expected read,implement,audit kinds in order, got %+v", phases.PhaseList)
	}
}

func TestDecomposeIsDeterministic(t *testing.T) {
	a := Decompose(samplePlanWithChanges, "plan-003", "workspace/plans/plan-003-add-bar.md", 5)
	b := Decompose(samplePlanWithChanges, "plan-003", "workspace/plans/plan-003-add-bar.md", 5)
	if a.PlanContentHash != b.PlanContentHash {
		t.Fatalf("expected identical hash, got %q vs %q", a.PlanContentHash, b.PlanContentHash)
	}
	if len(a.PhaseList) != len(b.PhaseList) {
		t.Fatalf("expected identical phase count")
	}
	for i := range a.PhaseList {
		if a.PhaseList[i].ID != b.PhaseList[i].ID || a.PhaseList[i].Title != b.PhaseList[i].Title {
			t.Fatalf("phase %d mismatch: %+v vs %+v", i, a.PhaseList[i], b.PhaseList[i])
		}
	}
}

func TestStalenessRoundTrip(t *testing.T) {
	hash := ContentHash(samplePlanWithChanges)
	if CheckStaleness(hash, samplePlanWithChanges) {
		t.Fatal("expected unmodified content to be not_stale")
	}
	modified := samplePlanWithChanges + "\n"
	if !CheckStaleness(hash, modified) {
		t.Fatal("expected modified content to be stale")
	}
}

func TestGetNextPhaseOrdering(t *testing.T) {
	phases := &Phases{PhaseList: []*Phase{
		{ID: "phase-1", Status: StatusDone},
		{ID: "phase-2", Status: StatusPending, DependsOn: []string{"phase-1"}},
		{ID: "phase-3", Status: StatusPending, DependsOn: []string{"phase-2"}},
	}}
	res := GetNextPhase(phases)
	if res.NothingToRun || res.Phase.ID != "phase-2" {
		t.Fatalf("expected phase-2 next, got %+v", res)
	}
}

func TestGetNextPhaseNothingToRun(t *testing.T) {
	phases := &Phases{PhaseList: []*Phase{
		{ID: "phase-1", Status: StatusDone},
		{ID: "phase-2", Status: StatusPending, DependsOn: []string{"phase-3"}},
		{ID: "phase-3", Status: StatusPending, DependsOn: []string{"phase-2"}},
	}}
	res := GetNextPhase(phases)
	if !res.NothingToRun {
		t.Fatalf("expected nothing_to_run for a cyclic/unsatisfiable dependency set, got %+v", res)
	}
}

func TestGetNextPhasePrefersInProgress(t *testing.T) {
	phases := &Phases{PhaseList: []*Phase{
		{ID: "phase-1", Status: StatusFailed},
		{ID: "phase-2", Status: StatusInProgress},
	}}
	res := GetNextPhase(phases)
	if res.Phase.ID != "phase-2" {
		t.Fatalf("expected in-progress phase prioritized, got %+v", res.Phase)
	}
}
