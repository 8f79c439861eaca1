// Package store provides the in-memory session registry.
package store

import (
	"sync"
	"time"

	"github.com/coding-interview-platform/backend/internal/model"
	"github.com/google/uuid"
)

// SessionStore is an in-memory registry of coding sessions. It is
// constructed once at startup and passed by reference to everything that
// needs session lookup; there is no package-level instance.
//
// Sessions are retained for the process lifetime. There is no eviction:
// a record outlives its connections so that clients can rejoin later.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*model.Session),
	}
}

// Create allocates a new session for the given language, seeded with the
// language's default code template. Returns ErrUnsupportedLanguage if the
// language is not in the supported set.
func (s *SessionStore) Create(language model.Language) (*model.Session, error) {
	if !language.IsSupported() {
		return nil, model.ErrUnsupportedLanguage
	}

	now := time.Now()
	session := &model.Session{
		ID:           uuid.NewString(),
		Language:     language,
		Code:         language.DefaultTemplate(),
		CreatedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// Get retrieves a session by ID. Returns ErrSessionNotFound if the ID is
// unknown.
func (s *SessionStore) Get(id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return session, nil
}

// UpdateCode overwrites the session's code (last writer wins) and refreshes
// its last-activity time. Returns ErrSessionNotFound if the ID is unknown.
// Only the session's hub calls this.
func (s *SessionStore) UpdateCode(id, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return model.ErrSessionNotFound
	}
	session.Code = code
	session.LastActivity = time.Now()
	return nil
}

// Count returns the total number of sessions in the store.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
