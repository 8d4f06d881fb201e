// Package memorystore implements the per-user durable and short-term
// memory files of spec §3/§3.1, grounded on the teacher's
// PersistentSessionManager per-key file layout generalized from one
// sessions.json to one file per user under memory/durable and
// memory/shortterm.
package memorystore

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/discoclaw/discoclaw/internal/domain/entity"
	"github.com/discoclaw/discoclaw/internal/infrastructure/persistence"
)

// DurableStore manages the durable memory files under dir, one JSON file
// per user id.
type DurableStore struct {
	dir string
	mu  sync.Mutex
}

func NewDurableStore(dir string) *DurableStore {
	return &DurableStore{dir: dir}
}

func (d *DurableStore) path(userID string) string {
	return filepath.Join(d.dir, userID+".json")
}

func (d *DurableStore) load(userID string) (*entity.DurableMemoryStore, error) {
	var store entity.DurableMemoryStore
	ok, err := persistence.LoadJSON(d.path(userID), &store)
	if err != nil {
		return nil, err
	}
	if !ok {
		store = entity.DurableMemoryStore{Version: 1}
	}
	return &store, nil
}

// Add appends a new memory item for userID and persists the file.
func (d *DurableStore) Add(userID, kind, text string, tags []string, source entity.MemorySource) (*entity.MemoryItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	store, err := d.load(userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	item := entity.MemoryItem{
		ID: uuid.NewString(), Kind: kind, Text: text, Tags: tags, Status: "active",
		Source: source, CreatedAt: now, UpdatedAt: now,
	}
	store.Items = append(store.Items, item)
	store.UpdatedAt = now
	if err := persistence.SaveJSON(d.path(userID), store); err != nil {
		return nil, err
	}
	return &item, nil
}

// Query returns active items for userID whose tags intersect tagFilter
// (empty filter matches everything), most-recent first.
func (d *DurableStore) Query(userID string, tagFilter []string) ([]entity.MemoryItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	store, err := d.load(userID)
	if err != nil {
		return nil, err
	}
	var out []entity.MemoryItem
	for i := len(store.Items) - 1; i >= 0; i-- {
		item := store.Items[i]
		if item.Status != "active" {
			continue
		}
		if len(tagFilter) > 0 && !hasAnyTag(item.Tags, tagFilter) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// Forget marks an item as retired rather than deleting it, preserving an
// audit trail.
func (d *DurableStore) Forget(userID, itemID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	store, err := d.load(userID)
	if err != nil {
		return err
	}
	found := false
	for i := range store.Items {
		if store.Items[i].ID == itemID {
			store.Items[i].Status = "retired"
			store.Items[i].UpdatedAt = time.Now()
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("memory item %s not found for user %s", itemID, userID)
	}
	store.UpdatedAt = time.Now()
	return persistence.SaveJSON(d.path(userID), store)
}

func hasAnyTag(tags, filter []string) bool {
	set := make(map[string]bool, len(filter))
	for _, t := range filter {
		set[t] = true
	}
	for _, t := range tags {
		if set[t] {
			return true
		}
	}
	return false
}
