// Package inflight tracks open placeholder messages currently being
// edited, persisted so a cold start can clean up orphans left by an
// unclean shutdown. Grounded on the teacher's
// telegram.PersistentSessionManager atomic-rewrite-plus-in-memory-cache
// pattern, file-backed per spec §6 (inflight.json) rather than SQLite.
package inflight

import (
	"sync"
	"time"

	"github.com/discoclaw/discoclaw/internal/domain/entity"
	"github.com/discoclaw/discoclaw/internal/infrastructure/persistence"
)

// ChatService is the minimal surface the registry needs to clean up
// orphaned placeholders at cold start.
type ChatService interface {
	EditMessage(channelID, messageID, text string) error
	DeleteMessage(channelID, messageID string) error
}

type mirrorFile struct {
	Replies []entity.InFlightReply `json:"replies"`
}

// Registry is the process-wide in-flight reply map.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entity.InFlightReply // keyed by message_id
	path    string
}

func NewRegistry(path string) (*Registry, error) {
	r := &Registry{entries: make(map[string]*entity.InFlightReply), path: path}
	var mf mirrorFile
	ok, err := persistence.LoadJSON(path, &mf)
	if err != nil {
		return nil, err
	}
	if ok {
		for i := range mf.Replies {
			e := mf.Replies[i]
			r.entries[e.MessageID] = &e
		}
	}
	return r, nil
}

func (r *Registry) persistLocked() error {
	if r.path == "" {
		return nil
	}
	mf := mirrorFile{Replies: make([]entity.InFlightReply, 0, len(r.entries))}
	for _, e := range r.entries {
		mf.Replies = append(mf.Replies, *e)
	}
	return persistence.SaveJSON(r.path, mf)
}

// Register adds an entry for a newly posted placeholder.
func (r *Registry) Register(channelID, messageID, purpose, sessionKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UnixMilli()
	r.entries[messageID] = &entity.InFlightReply{
		ChannelID:    channelID,
		MessageID:    messageID,
		CreatedAtMs:  now,
		LastEditAtMs: now,
		SessionKey:   sessionKey,
		Purpose:      purpose,
	}
	return r.persistLocked()
}

// NoteEdit updates the last-edit timestamp for a tracked message.
func (r *Registry) NoteEdit(messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[messageID]
	if !ok {
		return nil
	}
	e.LastEditAtMs = time.Now().UnixMilli()
	return r.persistLocked()
}

// Resolve removes a completed entry.
func (r *Registry) Resolve(messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, messageID)
	return r.persistLocked()
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) HasForChannel(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ChannelID == channelID {
			return true
		}
	}
	return false
}

// Drain best-effort edits every remaining placeholder with an
// "interrupted" marker within timeout, then clears the registry.
func (r *Registry) Drain(chat ChatService, marker string, timeout time.Duration) (int, error) {
	r.mu.Lock()
	snapshot := make([]entity.InFlightReply, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, *e)
	}
	r.mu.Unlock()

	deadline := time.Now().Add(timeout)
	drained := 0
	for _, e := range snapshot {
		if time.Now().After(deadline) {
			break
		}
		_ = chat.EditMessage(e.ChannelID, e.MessageID, marker)
		drained++
	}

	r.mu.Lock()
	r.entries = make(map[string]*entity.InFlightReply)
	err := r.persistLocked()
	r.mu.Unlock()
	return drained, err
}

// CleanupOrphans visits every persisted entry exactly once at cold start,
// editing or deleting the corresponding message, then clears the
// registry.
func (r *Registry) CleanupOrphans(chat ChatService) (int, error) {
	r.mu.Lock()
	snapshot := make([]entity.InFlightReply, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, *e)
	}
	r.mu.Unlock()

	visited := 0
	for _, e := range snapshot {
		if err := chat.EditMessage(e.ChannelID, e.MessageID, "Interrupted by restart."); err != nil {
			_ = chat.DeleteMessage(e.ChannelID, e.MessageID)
		}
		visited++
	}

	r.mu.Lock()
	r.entries = make(map[string]*entity.InFlightReply)
	err := r.persistLocked()
	r.mu.Unlock()
	return visited, err
}
