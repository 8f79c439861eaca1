package model

import "time"

// Session represents a collaborative coding session in the system.
// The Code field is owned by the session's hub once the session exists;
// nothing else mutates it after creation.
type Session struct {
	ID           string    `json:"session_id"`
	Language     Language  `json:"language"`
	Code         string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"-"`
}

// CreateSessionRequest represents a request to create a new session.
type CreateSessionRequest struct {
	Language Language `json:"language"`
}

// Validate validates the create session request.
func (r *CreateSessionRequest) Validate() error {
	if !r.Language.IsSupported() {
		return ErrUnsupportedLanguage
	}
	return nil
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	SessionID   string `json:"session_id"`
	Language    string `json:"language"`
	CreatedAt   string `json:"created_at,omitempty"`
	ActiveUsers int    `json:"active_users"`
}

// ToResponse converts a session to its API response form. The caller
// supplies the active user count, which is owned by the hub.
func (s *Session) ToResponse(activeUsers int) *SessionResponse {
	return &SessionResponse{
		SessionID:   s.ID,
		Language:    string(s.Language),
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		ActiveUsers: activeUsers,
	}
}
