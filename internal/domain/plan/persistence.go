package plan

import (
	"fmt"
	"os"
	"strings"

	"github.com/discoclaw/discoclaw/internal/infrastructure/persistence"
)

// jsonPath / markdownPath derive the phases sidecar paths from a plan's
// stem ("<stem>-phases.json" / ".md").
func jsonPath(stem string) string     { return stem + "-phases.json" }
func markdownPath(stem string) string { return stem + "-phases.md" }

// SavePhases writes both the canonical JSON sidecar and a human-readable
// markdown rendering, atomically.
func SavePhases(stem string, phases *Phases) error {
	if err := persistence.SaveJSON(jsonPath(stem), phases); err != nil {
		return err
	}
	md := renderMarkdown(phases)
	tmp := markdownPath(stem) + ".tmp"
	if err := os.WriteFile(tmp, []byte(md), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, markdownPath(stem))
}

// LoadPhases prefers the JSON sidecar; on parse error (or absence) it
// falls back to reconstructing from the markdown rendering, best-effort,
// and re-persists the JSON form.
func LoadPhases(stem string) (*Phases, error) {
	var phases Phases
	ok, err := persistence.LoadJSON(jsonPath(stem), &phases)
	if err != nil {
		return nil, err
	}
	if ok {
		return &phases, nil
	}

	md, err := os.ReadFile(markdownPath(stem))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	parsed := parseMarkdown(string(md))
	if parsed != nil {
		_ = persistence.SaveJSON(jsonPath(stem), parsed)
	}
	return parsed, nil
}

func renderMarkdown(phases *Phases) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Phases for %s\n\n", phases.PlanID)
	fmt.Fprintf(&sb, "Plan file: %s\n", phases.PlanFile)
	fmt.Fprintf(&sb, "Content hash: %s\n\n", phases.PlanContentHash)
	for _, p := range phases.PhaseList {
		fmt.Fprintf(&sb, "## %s: %s\n", p.ID, p.Title)
		fmt.Fprintf(&sb, "- kind: %s\n", p.Kind)
		fmt.Fprintf(&sb, "- status: %s\n", p.Status)
		if len(p.DependsOn) > 0 {
			fmt.Fprintf(&sb, "- depends_on: %s\n", strings.Join(p.DependsOn, ", "))
		}
		if len(p.ContextFiles) > 0 {
			fmt.Fprintf(&sb, "- context_files: %s\n", strings.Join(p.ContextFiles, ", "))
		}
		if p.Error != "" {
			fmt.Fprintf(&sb, "- error: %s\n", p.Error)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// parseMarkdown is a best-effort reconstruction used only when the JSON
// sidecar is missing or corrupted; it recovers id/title/kind/status and
// leaves richer fields (modified_files, failure_hashes) empty, which is
// acceptable since the JSON form is canonical and this path only runs
// once to repair it.
func parseMarkdown(md string) *Phases {
	lines := strings.Split(md, "\n")
	phases := &Phases{Version: 1}
	var current *Phase
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "# Phases for "):
			phases.PlanID = strings.TrimPrefix(line, "# Phases for ")
		case strings.HasPrefix(line, "Plan file: "):
			phases.PlanFile = strings.TrimPrefix(line, "Plan file: ")
		case strings.HasPrefix(line, "Content hash: "):
			phases.PlanContentHash = strings.TrimPrefix(line, "Content hash: ")
		case strings.HasPrefix(line, "## "):
			if current != nil {
				phases.PhaseList = append(phases.PhaseList, current)
			}
			rest := strings.TrimPrefix(line, "## ")
			parts := strings.SplitN(rest, ": ", 2)
			current = &Phase{ID: parts[0]}
			if len(parts) > 1 {
				current.Title = parts[1]
			}
		case strings.HasPrefix(line, "- kind: ") && current != nil:
			current.Kind = PhaseKind(strings.TrimPrefix(line, "- kind: "))
		case strings.HasPrefix(line, "- status: ") && current != nil:
			current.Status = PhaseStatus(strings.TrimPrefix(line, "- status: "))
		case strings.HasPrefix(line, "- depends_on: ") && current != nil:
			current.DependsOn = strings.Split(strings.TrimPrefix(line, "- depends_on: "), ", ")
		case strings.HasPrefix(line, "- context_files: ") && current != nil:
			current.ContextFiles = strings.Split(strings.TrimPrefix(line, "- context_files: "), ", ")
		}
	}
	if current != nil {
		phases.PhaseList = append(phases.PhaseList, current)
	}
	if phases.PlanID == "" {
		return nil
	}
	return phases
}
