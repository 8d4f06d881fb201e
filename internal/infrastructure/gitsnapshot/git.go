// Package gitsnapshot wraps the git plumbing the plan phase engine needs
// for before/after-execution snapshots, retry-safety hashing, and commit
// recording. Grounded on the teacher's infrastructure/tool/git_tool.go
// diff/status/commit plumbing.
package gitsnapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"strings"
)

// Snapshotter runs git commands rooted at Dir. A nil/zero Dir means git is
// treated as unavailable; callers run without snapshot protection.
type Snapshotter struct {
	Dir string
}

func New(dir string) *Snapshotter { return &Snapshotter{Dir: dir} }

// Available reports whether Dir is inside a git work tree.
func (s *Snapshotter) Available() bool {
	if s.Dir == "" {
		return false
	}
	out, err := s.run("rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

func (s *Snapshotter) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = s.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), err
	}
	return stdout.String(), nil
}

func (s *Snapshotter) nameOnly(args ...string) ([]string, error) {
	out, err := s.run(args...)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// DirtySet returns the union of unstaged-diff, staged-diff, and untracked
// file paths — the pre/post execution snapshot set of spec §4.7.
func (s *Snapshotter) DirtySet() (map[string]bool, error) {
	set := make(map[string]bool)
	unstaged, err := s.nameOnly("diff", "--name-only")
	if err != nil {
		return nil, err
	}
	staged, err := s.nameOnly("diff", "--staged", "--name-only")
	if err != nil {
		return nil, err
	}
	untracked, err := s.nameOnly("ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	for _, f := range unstaged {
		set[f] = true
	}
	for _, f := range staged {
		set[f] = true
	}
	for _, f := range untracked {
		set[f] = true
	}
	return set, nil
}

// Diff computes new.minus(old), the modified_files set for a phase.
func Diff(old, new map[string]bool) []string {
	var out []string
	for f := range new {
		if !old[f] {
			out = append(out, f)
		}
	}
	return out
}

// HashFile computes a short SHA-256 hash of a file's current content, used
// to detect external modification before a retry-revert.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// RevertTracked reverts a file that existed in the pre-execution snapshot
// (git checkout -- <file>).
func (s *Snapshotter) RevertTracked(path string) error {
	_, err := s.run("checkout", "--", path)
	return err
}

// RemoveUntracked removes a file that was an artefact of a failed attempt
// (git clean -f -- <file>).
func (s *Snapshotter) RemoveUntracked(path string) error {
	_, err := s.run("clean", "-f", "--", path)
	return err
}

// CommitPhase commits modifiedFiles with the "<plan-id> <phase-id>:
// <title>" message and returns the short commit hash.
func (s *Snapshotter) CommitPhase(planID, phaseID, title string, modifiedFiles []string) (string, error) {
	if len(modifiedFiles) == 0 {
		return "", nil
	}
	args := append([]string{"add"}, modifiedFiles...)
	if _, err := s.run(args...); err != nil {
		return "", err
	}
	message := planID + " " + phaseID + ": " + title
	if _, err := s.run("commit", "-m", message); err != nil {
		return "", err
	}
	out, err := s.run("rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RollbackAll rolls back all working-tree changes: git checkout . then
// git clean -fd, used at audit-fix-loop exhaustion.
func (s *Snapshotter) RollbackAll() error {
	if _, err := s.run("checkout", "."); err != nil {
		return err
	}
	_, err := s.run("clean", "-fd")
	return err
}
