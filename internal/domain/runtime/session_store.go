package runtime

import (
	"github.com/discoclaw/discoclaw/internal/domain/entity"
	"github.com/discoclaw/discoclaw/internal/infrastructure/persistence"
)

type sessionFile struct {
	Sessions map[string]*entity.Session `json:"sessions"`
}

// sessionStore wraps persistence.LoadJSON/SaveJSON for sessions.json.
type sessionStore struct {
	path string
}

func newSessionStore(path string) *sessionStore {
	return &sessionStore{path: path}
}

func (s *sessionStore) Load() (map[string]*entity.Session, error) {
	sessions := make(map[string]*entity.Session)
	if s.path == "" {
		return sessions, nil
	}
	var file sessionFile
	ok, err := persistence.LoadJSON(s.path, &file)
	if err != nil {
		return nil, err
	}
	if ok && file.Sessions != nil {
		return file.Sessions, nil
	}
	return sessions, nil
}

func (s *sessionStore) Save(sessions map[string]*entity.Session) error {
	if s.path == "" {
		return nil
	}
	return persistence.SaveJSON(s.path, sessionFile{Sessions: sessions})
}
