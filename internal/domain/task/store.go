// Package task implements the append-only JSONL task store of spec §3:
// a durable task record log where mutations are appended as full
// records and the in-memory index is rebuilt by replaying the log,
// latest record per id winning. Grounded on the teacher's
// PersistentSessionManager append-then-reload convention.
package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/discoclaw/discoclaw/internal/infrastructure/persistence"
	appErrors "github.com/discoclaw/discoclaw/pkg/errors"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
)

// ExternalRefs links a task back to its backing forum thread, if any.
type ExternalRefs struct {
	ThreadID string `json:"thread_id,omitempty"`
}

// Record is one task, as persisted to tasks.jsonl.
type Record struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Status       Status       `json:"status"`
	Labels       []string     `json:"labels,omitempty"`
	ExternalRefs ExternalRefs `json:"external_refs,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Store is the in-memory index over the JSONL log, rebuilt on Load.
type Store struct {
	path string

	mu      sync.Mutex
	byID    map[string]*Record
	counter int
	prefix  string
}

// NewStore opens (creating if absent) the JSONL log at path and rebuilds
// the in-memory index by replaying it.
func NewStore(path, idPrefix string) (*Store, error) {
	s := &Store{path: path, byID: make(map[string]*Record), prefix: idPrefix}
	if s.prefix == "" {
		s.prefix = "ws"
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	return persistence.LoadJSONL(s.path, func(line []byte) error {
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		s.byID[r.ID] = &r
		if n, ok := counterSuffix(r.ID, s.prefix); ok && n > s.counter {
			s.counter = n
		}
		return nil
	})
}

func counterSuffix(id, prefix string) (int, bool) {
	rest := strings.TrimPrefix(id, prefix+"-")
	if rest == id {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(rest, "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// Create appends a new open task, generating a monotone "<prefix>-NNN" id.
func (s *Store) Create(title, description string, labels []string, threadID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	now := time.Now()
	r := &Record{
		ID: fmt.Sprintf("%s-%03d", s.prefix, s.counter), Title: title, Description: description,
		Status: StatusOpen, Labels: labels, ExternalRefs: ExternalRefs{ThreadID: threadID},
		CreatedAt: now, UpdatedAt: now,
	}
	if err := persistence.AppendJSONL(s.path, r); err != nil {
		return nil, err
	}
	s.byID[r.ID] = r
	return r, nil
}

// FindOpenByTitle dedups by exact-case-insensitive title among non-closed
// tasks, per spec §4.6's forge dedup rule.
func (s *Store) FindOpenByTitle(title string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	lower := strings.ToLower(title)
	for _, r := range s.byID {
		if r.Status != StatusClosed && strings.ToLower(r.Title) == lower {
			return r
		}
	}
	return nil
}

// Get returns a task by id, or an AppError NotFound.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, appErrors.NewNotFoundError(fmt.Sprintf("task %s not found", id))
	}
	return r, nil
}

// Update appends a mutated copy of a record and updates the in-memory
// index; the log itself stays append-only.
func (s *Store) Update(id string, mutate func(r *Record)) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, appErrors.NewNotFoundError(fmt.Sprintf("task %s not found", id))
	}
	updated := *r
	mutate(&updated)
	updated.UpdatedAt = time.Now()
	if err := persistence.AppendJSONL(s.path, updated); err != nil {
		return nil, err
	}
	s.byID[id] = &updated
	return &updated, nil
}

// SetStatus is a common Update wrapper.
func (s *Store) SetStatus(id string, status Status) (*Record, error) {
	return s.Update(id, func(r *Record) { r.Status = status })
}

// AddLabel is a common Update wrapper, used by forge's "apply a plan
// label instead" rule when reusing an existing task.
func (s *Store) AddLabel(id, label string) (*Record, error) {
	return s.Update(id, func(r *Record) {
		for _, l := range r.Labels {
			if l == label {
				return
			}
		}
		r.Labels = append(r.Labels, label)
	})
}

// List returns every task, optionally filtered by status (empty = all).
func (s *Store) List(status Status) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, 0, len(s.byID))
	for _, r := range s.byID {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
