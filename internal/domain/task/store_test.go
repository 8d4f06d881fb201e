package task

import (
	"path/filepath"
	"testing"
)

func TestCreateGeneratesMonotoneIDs(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "tasks.jsonl"), "ws")
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.Create("First", "", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Create("Second", "", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "ws-001" || b.ID != "ws-002" {
		t.Fatalf("expected ws-001/ws-002, got %s/%s", a.ID, b.ID)
	}
}

func TestStoreRebuildsIndexFromLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.jsonl")
	s, err := NewStore(path, "ws")
	if err != nil {
		t.Fatal(err)
	}
	created, err := s.Create("Reload me", "", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetStatus(created.ID, StatusInProgress); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStore(path, "ws")
	if err != nil {
		t.Fatal(err)
	}
	r, err := reopened.Get(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusInProgress {
		t.Fatalf("expected replayed status in_progress, got %s", r.Status)
	}

	next, err := reopened.Create("After reload", "", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if next.ID != "ws-002" {
		t.Fatalf("expected counter to resume at ws-002, got %s", next.ID)
	}
}

func TestFindOpenByTitleDedupsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "tasks.jsonl"), "ws")
	if err != nil {
		t.Fatal(err)
	}
	created, err := s.Create("Add Bar To Foo", "", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	found := s.FindOpenByTitle("add bar to foo")
	if found == nil || found.ID != created.ID {
		t.Fatalf("expected case-insensitive dedup match, got %+v", found)
	}

	if _, err := s.SetStatus(created.ID, StatusClosed); err != nil {
		t.Fatal(err)
	}
	if s.FindOpenByTitle("add bar to foo") != nil {
		t.Fatal("expected closed task to be excluded from dedup search")
	}
}
