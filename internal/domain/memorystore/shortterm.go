package memorystore

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/discoclaw/discoclaw/internal/domain/entity"
	"github.com/discoclaw/discoclaw/internal/infrastructure/persistence"
)

const defaultMaxTurns = 20

// ShortTermStore manages the rolling short-term memory windows under dir,
// one JSON file per user id.
type ShortTermStore struct {
	dir      string
	maxTurns int
	mu       sync.Mutex
}

func NewShortTermStore(dir string, maxTurns int) *ShortTermStore {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &ShortTermStore{dir: dir, maxTurns: maxTurns}
}

func (s *ShortTermStore) path(userID string) string {
	return filepath.Join(s.dir, userID+".json")
}

func (s *ShortTermStore) load(userID string) (*entity.ShortTermMemory, error) {
	var mem entity.ShortTermMemory
	ok, err := persistence.LoadJSON(s.path(userID), &mem)
	if err != nil {
		return nil, err
	}
	if !ok {
		mem = entity.ShortTermMemory{Version: 1, MaxTurns: s.maxTurns}
	}
	return &mem, nil
}

// Append records a new turn, trimming the window to MaxTurns.
func (s *ShortTermStore) Append(userID, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mem, err := s.load(userID)
	if err != nil {
		return err
	}
	mem.Turns = append(mem.Turns, entity.ShortTermTurn{Role: role, Text: text, CreatedAt: time.Now()})
	if max := mem.MaxTurns; max > 0 && len(mem.Turns) > max {
		mem.Turns = mem.Turns[len(mem.Turns)-max:]
	}
	mem.UpdatedAt = time.Now()
	return persistence.SaveJSON(s.path(userID), mem)
}

// Recent returns the stored turns, oldest first.
func (s *ShortTermStore) Recent(userID string) ([]entity.ShortTermTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mem, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	return mem.Turns, nil
}

// Clear empties a user's short-term window, e.g. on explicit reset.
func (s *ShortTermStore) Clear(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mem := &entity.ShortTermMemory{Version: 1, MaxTurns: s.maxTurns, UpdatedAt: time.Now()}
	return persistence.SaveJSON(s.path(userID), mem)
}
