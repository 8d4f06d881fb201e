// Package planid generates plan-NNN identifiers and slugs, shared by the
// forge orchestrator (drafting new plans) and the plan phase engine
// (decomposing existing ones).
package planid

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var planFileRe = regexp.MustCompile(`^plan-(\d{3})-`)

// Next scans dir for existing plan-NNN-*.md files and returns the next
// zero-padded-3 id, e.g. "plan-004" after plan-001..plan-003 exist.
func Next(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "plan-001", nil
		}
		return "", err
	}
	max := 0
	for _, e := range entries {
		m := planFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("plan-%03d", max+1), nil
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases title, collapses runs of non-alphanumerics to a
// single hyphen, trims leading/trailing hyphens, and caps length at 50.
func Slugify(title string) string {
	lower := strings.ToLower(title)
	slug := nonAlnumRe.ReplaceAllString(lower, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 50 {
		slug = strings.Trim(slug[:50], "-")
	}
	return slug
}

// FileName builds the "plan-NNN-slug.md" file name for a new plan.
func FileName(id, title string) string {
	return fmt.Sprintf("%s-%s.md", id, Slugify(title))
}

// PhasesStem strips the .md extension from a plan file path, preserving
// its directory, used to derive the "<stem>-phases.md"/".json" sidecar
// paths alongside the plan file itself.
func PhasesStem(planFile string) string {
	ext := filepath.Ext(planFile)
	return strings.TrimSuffix(planFile, ext)
}
