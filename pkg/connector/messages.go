package connector

import "encoding/json"

// Message is the wire envelope exchanged with the session server. Every
// frame is a {type, data} JSON object.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message types in the session protocol. Frames with other types are
// forwarded to the application untouched.
const (
	MessageTypeSessionState = "session_state"
	MessageTypeCodeUpdate   = "code_update"
	MessageTypeUserJoined   = "user_joined"
	MessageTypeUserLeft     = "user_left"
)

// SessionStatePayload is the data of a session_state message.
type SessionStatePayload struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	ActiveUsers int    `json:"active_users"`
}

// CodeUpdatePayload is the data of a code_update message.
type CodeUpdatePayload struct {
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
}

// PresencePayload is the data of user_joined and user_left messages.
type PresencePayload struct {
	UserCount int `json:"user_count"`
}
