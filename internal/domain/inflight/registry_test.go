package inflight

import (
	"errors"
	"path/filepath"
	"testing"
)

type fakeChat struct {
	edited  []string
	deleted []string
	failEdit bool
}

func (f *fakeChat) EditMessage(channelID, messageID, text string) error {
	if f.failEdit {
		return errors.New("edit failed")
	}
	f.edited = append(f.edited, messageID)
	return nil
}

func (f *fakeChat) DeleteMessage(channelID, messageID string) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func TestRegisterResolveCount(t *testing.T) {
	r, err := NewRegistry(filepath.Join(t.TempDir(), "inflight.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register("chan-1", "msg-1", "reply", "key-1"); err != nil {
		t.Fatal(err)
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
	if err := r.Resolve("msg-1"); err != nil {
		t.Fatal(err)
	}
	if r.Count() != 0 {
		t.Fatalf("expected count 0 after resolve, got %d", r.Count())
	}
}

func TestCleanupOrphansVisitsEachEntryOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inflight.json")
	r, err := NewRegistry(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = r.Register("chan-1", "msg-1", "reply", "key-1")
	_ = r.Register("chan-2", "msg-2", "reply", "key-2")

	// Simulate an unclean exit by reloading from the persisted mirror.
	reloaded, err := NewRegistry(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Count() != 2 {
		t.Fatalf("expected reload to find 2 persisted entries, got %d", reloaded.Count())
	}

	chat := &fakeChat{}
	visited, err := reloaded.CleanupOrphans(chat)
	if err != nil {
		t.Fatal(err)
	}
	if visited != 2 {
		t.Fatalf("expected 2 visited, got %d", visited)
	}
	if len(chat.edited) != 2 {
		t.Fatalf("expected 2 edits, got %d", len(chat.edited))
	}
	if reloaded.Count() != 0 {
		t.Fatalf("expected registry cleared after cleanup, got count %d", reloaded.Count())
	}
}

func TestCleanupOrphansFallsBackToDelete(t *testing.T) {
	r, err := NewRegistry(filepath.Join(t.TempDir(), "inflight.json"))
	if err != nil {
		t.Fatal(err)
	}
	_ = r.Register("chan-1", "msg-1", "reply", "key-1")
	chat := &fakeChat{failEdit: true}
	if _, err := r.CleanupOrphans(chat); err != nil {
		t.Fatal(err)
	}
	if len(chat.deleted) != 1 {
		t.Fatalf("expected delete fallback, got %d deletes", len(chat.deleted))
	}
}
