package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ContentHash computes the first-16-hex-chars of SHA-256(content), the
// plan_content_hash invariant.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

var workspaceBasenames = map[string]bool{
	"TOOLS.md": true, "AGENTS.md": true, "MEMORY.md": true,
	"SOUL.md": true, "IDENTITY.md": true, "USER.md": true,
}

func normalizePath(p string) string {
	if !strings.Contains(p, "/") && workspaceBasenames[p] {
		return "workspace/" + p
	}
	return p
}

var (
	pathTokenRe  = regexp.MustCompile("`([^`]+)`")
	allCapsRe    = regexp.MustCompile(`^[A-Z0-9_]+$`)
	pascalCaseRe = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`)
	knownExtRe   = regexp.MustCompile(`\.(go|ts|tsx|js|jsx|py|rb|rs|java|md|json|yaml|yml|toml|sh)$`)
)

func looksLikePath(tok string) bool {
	if strings.Contains(tok, "/") {
		return true
	}
	if workspaceBasenames[tok] {
		return true
	}
	if knownExtRe.MatchString(tok) {
		if allCapsRe.MatchString(strings.TrimSuffix(tok, filepath.Ext(tok))) {
			return false
		}
		return true
	}
	if allCapsRe.MatchString(tok) || pascalCaseRe.MatchString(tok) {
		return false
	}
	return false
}

// extractChangesSection returns the raw markdown text of the "## Changes"
// section, from its heading up to (exclusive of) the next level-2 heading.
func extractChangesSection(planContent string) string {
	lines := strings.Split(planContent, "\n")
	start := -1
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "## Changes") {
			start = i + 1
			break
		}
	}
	if start == -1 {
		return ""
	}
	end := len(lines)
	for i := start; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "## ") {
			end = i
			break
		}
	}
	return strings.Join(lines[start:end], "\n")
}

// changeManifestEntry is one element of an optional Change Manifest JSON
// array embedded in the Changes section.
type changeManifestEntry struct {
	Path string `json:"path"`
}

// extractFilePaths applies the two heuristics of spec §4.7: a Change
// Manifest JSON array if present, otherwise a goldmark-AST scan of
// bulleted items and bold headings for backtick-enclosed path-looking
// tokens. Order is first-seen, deduplicated.
func extractFilePaths(section string) []string {
	if manifest := tryParseManifest(section); manifest != nil {
		return manifest
	}

	seen := make(map[string]bool)
	var out []string
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader([]byte(section)))
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		if code, ok := n.(*ast.CodeSpan); ok {
			tok := string(code.Text([]byte(section)))
			if looksLikePath(tok) {
				norm := normalizePath(tok)
				if !seen[norm] {
					seen[norm] = true
					out = append(out, norm)
				}
			}
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c)
		}
	}
	walk(doc)

	if len(out) == 0 {
		// Fallback: raw backtick scan, for plans whose markdown isn't a
		// clean goldmark-parseable list (bold-delimited headings etc).
		for _, m := range pathTokenRe.FindAllStringSubmatch(section, -1) {
			tok := m[1]
			if looksLikePath(tok) {
				norm := normalizePath(tok)
				if !seen[norm] {
					seen[norm] = true
					out = append(out, norm)
				}
			}
		}
	}
	return out
}

func tryParseManifest(section string) []string {
	start := strings.Index(section, "[")
	end := strings.LastIndex(section, "]")
	if start == -1 || end == -1 || end < start {
		return nil
	}
	var entries []changeManifestEntry
	if err := json.Unmarshal([]byte(section[start:end+1]), &entries); err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		norm := normalizePath(e.Path)
		if norm != "" && !seen[norm] {
			seen[norm] = true
			out = append(out, norm)
		}
	}
	return out
}

// testCounterpart reports whether b is a test/spec file whose stem
// matches a (X paired with X.test.* / X.spec.*).
func testCounterpart(a, b string) bool {
	stemA := strings.TrimSuffix(a, filepath.Ext(a))
	for _, suffix := range []string{".test", ".spec"} {
		if strings.HasPrefix(strings.TrimSuffix(b, filepath.Ext(b)), stemA+suffix) {
			return true
		}
	}
	return false
}

// groupFiles pairs test counterparts, otherwise buckets by directory,
// splitting buckets over maxContextFiles. Order is first-seen.
func groupFiles(files []string, maxContextFiles int) [][]string {
	if maxContextFiles <= 0 {
		maxContextFiles = 5
	}
	paired := make(map[int]bool)
	var groups [][]string
	for i, f := range files {
		if paired[i] {
			continue
		}
		group := []string{f}
		paired[i] = true
		for j := i + 1; j < len(files); j++ {
			if paired[j] {
				continue
			}
			if testCounterpart(f, files[j]) || testCounterpart(files[j], f) {
				group = append(group, files[j])
				paired[j] = true
			}
		}
		groups = append(groups, group)
	}

	// Bucket remaining singleton groups by directory.
	byDir := make(map[string][]string)
	var dirOrder []string
	var result [][]string
	for _, g := range groups {
		if len(g) > 1 {
			result = append(result, g)
			continue
		}
		dir := filepath.Dir(g[0])
		if _, ok := byDir[dir]; !ok {
			dirOrder = append(dirOrder, dir)
		}
		byDir[dir] = append(byDir[dir], g[0])
	}
	for _, dir := range dirOrder {
		bucket := byDir[dir]
		for len(bucket) > maxContextFiles {
			result = append(result, bucket[:maxContextFiles])
			bucket = bucket[maxContextFiles:]
		}
		if len(bucket) > 0 {
			result = append(result, bucket)
		}
	}
	return result
}

func titleForGroup(group []string) string {
	if len(group) == 1 {
		return "Implement " + group[0]
	}
	dir := filepath.Dir(group[0])
	if dir == "." || dir == "" {
		return fmt.Sprintf("Implement %d files", len(group))
	}
	return "Implement " + dir
}

// DecomposeResult is the output of Decompose.
type DecomposeResult struct {
	Phases *Phases
}

// Decompose is a pure function of (planContent, maxContextFiles): same
// inputs yield identical phase ids, titles, groupings, and
// plan_content_hash.
func Decompose(planContent, planID, planFile string, maxContextFiles int) *Phases {
	hash := ContentHash(planContent)
	section := extractChangesSection(planContent)
	files := extractFilePaths(section)

	var phases []*Phase
	if len(files) == 0 {
		phases = []*Phase{
			{ID: "phase-1", Title: "Read plan context", Kind: KindRead, Status: StatusPending, ContextFiles: []string{planFile}},
			{ID: "phase-2", Title: "Implement plan", Kind: KindImplement, Status: StatusPending, DependsOn: []string{"phase-1"}, ContextFiles: []string{planFile}},
			{ID: "phase-3", Title: "Audit implementation", Kind: KindAudit, Status: StatusPending, DependsOn: []string{"phase-2"}},
		}
	} else {
		groups := groupFiles(files, maxContextFiles)
		var implementIDs []string
		prevID := ""
		for i, g := range groups {
			id := fmt.Sprintf("phase-%d", i+1)
			var deps []string
			if prevID != "" {
				deps = []string{prevID}
			}
			phases = append(phases, &Phase{
				ID: id, Title: titleForGroup(g), Kind: KindImplement, Status: StatusPending,
				DependsOn: deps, ContextFiles: g,
			})
			implementIDs = append(implementIDs, id)
			prevID = id
		}
		auditID := fmt.Sprintf("phase-%d", len(groups)+1)
		phases = append(phases, &Phase{
			ID: auditID, Title: "Audit implementation", Kind: KindAudit, Status: StatusPending, DependsOn: implementIDs,
		})
	}

	now := time.Now()
	return &Phases{
		Version: 1, PlanID: planID, PlanFile: planFile, PlanContentHash: hash,
		PhaseList: phases, CreatedAt: now, UpdatedAt: now,
	}
}

// CheckStaleness compares expectedHash against ContentHash(currentContent).
func CheckStaleness(expectedHash, currentContent string) bool {
	return ContentHash(currentContent) != expectedHash
}
