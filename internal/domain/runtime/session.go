package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/discoclaw/discoclaw/internal/domain/entity"
)

// SessionKey builds the "<purpose>:<model>:<scope>" identifier spec §4.1
// mandates, e.g. "forge-plan-017:capable:drafter".
func SessionKey(purpose, model, scope string) string {
	return fmt.Sprintf("%s:%s:%s", purpose, model, scope)
}

// NativeIDFactory mints a fresh adapter-native session id for a runtime.
type NativeIDFactory func(runtimeID string) string

// SessionManager maps a stable SessionKey to an adapter-native opaque id,
// single-writer (sequenced by mu), persisted as a flat JSON map. Grounded
// on the teacher's telegram.DefaultSessionManager, generalized from an
// in-memory chat-session cache to a persisted runtime-session map.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*entity.Session
	store    *sessionStore
}

// NewSessionManager builds a manager backed by the JSON file at path. An
// empty path disables persistence (in-memory only), used in tests.
func NewSessionManager(path string) (*SessionManager, error) {
	store := newSessionStore(path)
	sessions, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &SessionManager{sessions: sessions, store: store}, nil
}

// Resolve returns the adapter-native id for key, creating one via mint if
// this is the first time key has been seen. Identical keys within a
// session lifetime always return the same native id; distinct keys are
// always independent.
func (m *SessionManager) Resolve(key, runtimeID string, mint NativeIDFactory) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if s, ok := m.sessions[key]; ok {
		s.LastUsedAt = now
		if err := m.store.Save(m.sessions); err != nil {
			return "", err
		}
		return s.NativeID, nil
	}

	native := mint(runtimeID)
	m.sessions[key] = &entity.Session{
		Key:        key,
		RuntimeID:  runtimeID,
		NativeID:   native,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if err := m.store.Save(m.sessions); err != nil {
		return "", err
	}
	return native, nil
}

// Forget drops a session key, used when a session is known corrupted.
func (m *SessionManager) Forget(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return m.store.Save(m.sessions)
}

// Count reports the number of tracked sessions, for diagnostics.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
