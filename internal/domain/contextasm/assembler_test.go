package contextasm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/discoclaw/discoclaw/internal/infrastructure/chatservice"
)

func TestAssembleBoundaryPrecedesUserMessageExactlyOnce(t *testing.T) {
	workspace := t.TempDir()
	modules := t.TempDir()
	if err := os.WriteFile(filepath.Join(modules, "01-tone.md"), []byte("Be concise."), 0o644); err != nil {
		t.Fatal(err)
	}

	asm, err := NewAssembler(Config{WorkspaceDir: workspace, PersonaContextModules: modules})
	if err != nil {
		t.Fatal(err)
	}

	prompt, err := asm.Assemble(Input{UserMessage: "hello there"})
	if err != nil {
		t.Fatal(err)
	}

	if strings.Count(prompt, boundary) != 1 {
		t.Fatalf("expected boundary exactly once, got prompt: %s", prompt)
	}
	idx := strings.Index(prompt, boundary)
	rest := prompt[idx+len(boundary):]
	if !strings.Contains(rest, "hello there") {
		t.Fatalf("expected user message after boundary, got: %s", rest)
	}
	if strings.Index(prompt, "Be concise.") > idx {
		t.Fatal("expected persona context module content before the boundary")
	}
}

func TestAssembleRequiresPersonaContextModulesDir(t *testing.T) {
	_, err := NewAssembler(Config{WorkspaceDir: t.TempDir(), PersonaContextModules: filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Fatal("expected hard failure when persona context modules directory is missing")
	}
}

func TestBudgetTruncatesWithMarker(t *testing.T) {
	text := strings.Repeat("a", 100)
	out := Budget(text, 10)
	if len(out) <= 10 {
		t.Fatalf("expected truncation marker appended, got %q", out)
	}
	if !strings.Contains(out, "+90 more") {
		t.Fatalf("expected overflow count in marker, got %q", out)
	}
}

func TestImageAttachmentsFiltersToImageMime(t *testing.T) {
	atts := []chatservice.Attachment{
		{Filename: "a.png", MimeType: "image/png"},
		{Filename: "b.txt", MimeType: "text/plain"},
	}
	out := ImageAttachments(atts)
	if len(out) != 1 || out[0].Filename != "a.png" {
		t.Fatalf("expected only image attachment, got %+v", out)
	}
}
