// Package ws provides WebSocket connection handling and message routing.
package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/coding-interview-platform/backend/internal/model"
	"github.com/coding-interview-platform/backend/internal/store"
	"github.com/gorilla/websocket"
)

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Server -> client, sent once on successful bind.
	MessageTypeSessionState MessageType = "session_state"

	// Either direction, document change.
	MessageTypeCodeUpdate MessageType = "code_update"

	// Server -> client, presence changes.
	MessageTypeUserJoined MessageType = "user_joined"
	MessageTypeUserLeft   MessageType = "user_left"
)

// Message is the wire envelope. Every frame is a {type, data} JSON object.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SessionStatePayload is the data of a session_state message.
type SessionStatePayload struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	ActiveUsers int    `json:"active_users"`
}

// CodeUpdatePayload is the data of a code_update message. The code
// pointer distinguishes a missing field from an empty one when validating
// inbound updates. The timestamp is client-supplied and only required to
// be present; clients stamp with anything from RFC 3339 strings to epoch
// millisecond numbers, so it is kept raw and forwarded verbatim.
type CodeUpdatePayload struct {
	Code      *string         `json:"code"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// PresencePayload is the data of user_joined and user_left messages.
type PresencePayload struct {
	UserCount int `json:"user_count"`
}

// Client represents one WebSocket connection bound to a room.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	mu        sync.Mutex
	closed    bool
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
	}
}

// Send queues a message to be sent to the client. A full buffer closes the
// client; a slow or dead connection never blocks the caller, so delivery
// failures stay isolated to this client.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.closeLocked()
	}
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SessionID returns the session ID associated with this client.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Hub owns one session's room: the set of bound clients, presence counts,
// and the broadcast logic. The session's code lives in the store; the hub
// is its sole mutator once the session exists. All room mutations are
// serialized by the hub mutex; different rooms are independent.
type Hub struct {
	sessionID string
	store     *store.SessionStore
	clients   map[*Client]bool
	mu        sync.RWMutex
}

// NewHub creates a new Hub for the given session.
func NewHub(sessionID string, sessionStore *store.SessionStore) *Hub {
	return &Hub{
		sessionID: sessionID,
		store:     sessionStore,
		clients:   make(map[*Client]bool),
	}
}

// SessionID returns the session ID for this hub.
func (h *Hub) SessionID() string {
	return h.sessionID
}

// Bind adds a client to the room. The client receives a session_state
// snapshot with the user count computed after the add, and every other
// client receives user_joined. Returns ErrSessionNotFound if the session
// record is gone; the caller must close the connection in that case.
func (h *Hub) Bind(client *Client) error {
	h.mu.Lock()

	// Snapshot under the room lock so an update racing this bind cannot
	// slip between the snapshot and the add.
	session, err := h.store.Get(h.sessionID)
	if err != nil {
		h.mu.Unlock()
		return err
	}

	h.clients[client] = true
	count := len(h.clients)

	state := &SessionStatePayload{
		Code:        session.Code,
		Language:    string(session.Language),
		ActiveUsers: count,
	}
	if data, err := marshalMessage(MessageTypeSessionState, state); err == nil {
		client.Send(data)
	} else {
		log.Printf("Failed to marshal session_state for session %s: %v", h.sessionID, err)
	}

	h.broadcastLocked(MessageTypeUserJoined, &PresencePayload{UserCount: count}, client)
	h.mu.Unlock()

	return nil
}

// Unbind removes a client from the room and notifies the remaining clients
// with user_left carrying the count recomputed after the removal. The room
// itself is retained even at zero clients.
func (h *Hub) Unbind(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		client.Close()
		return
	}
	delete(h.clients, client)
	count := len(h.clients)
	h.broadcastLocked(MessageTypeUserLeft, &PresencePayload{UserCount: count}, nil)
	h.mu.Unlock()

	client.Close()
}

// ApplyUpdate validates a code_update payload, overwrites the session's
// code (last writer wins, no merge), and rebroadcasts the update to every
// client except the sender. A malformed payload is dropped and logged; the
// sender's connection stays open.
func (h *Hub) ApplyUpdate(sender *Client, raw json.RawMessage) {
	var payload CodeUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("Dropping malformed code_update in session %s: %v", h.sessionID, err)
		return
	}
	if payload.Code == nil || len(payload.Timestamp) == 0 || string(payload.Timestamp) == "null" {
		log.Printf("Dropping code_update in session %s: %v", h.sessionID, model.ErrInvalidPayload)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.store.UpdateCode(h.sessionID, *payload.Code); err != nil {
		log.Printf("Failed to update code for session %s: %v", h.sessionID, err)
		return
	}

	h.broadcastLocked(MessageTypeCodeUpdate, &payload, sender)
}

// HandleMessage routes an inbound frame from a client. Unknown message
// types are ignored, not treated as errors.
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case MessageTypeCodeUpdate:
		h.ApplyUpdate(client, msg.Data)
	}
}

// broadcastLocked fans a message out to every client except exclude.
// Callers must hold h.mu. Each delivery goes through the target's buffered
// send channel, so one blocked client cannot stall the others or the room.
func (h *Hub) broadcastLocked(msgType MessageType, payload any, exclude *Client) {
	data, err := marshalMessage(msgType, payload)
	if err != nil {
		log.Printf("Failed to marshal %s broadcast for session %s: %v", msgType, h.sessionID, err)
		return
	}

	for client := range h.clients {
		if client == exclude {
			continue
		}
		client.Send(data)
	}
}

// ClientCount returns the number of clients currently bound to the room.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes all client connections and empties the room.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

func marshalMessage(msgType MessageType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Message{Type: msgType, Data: data})
}

// HubManager manages the hubs for all sessions. Hubs are retained after
// their last client unbinds so that presence and code survive rejoins.
type HubManager struct {
	store *store.SessionStore
	hubs  map[string]*Hub
	mu    sync.RWMutex
}

// NewHubManager creates a new HubManager backed by the given store.
func NewHubManager(sessionStore *store.SessionStore) *HubManager {
	return &HubManager{
		store: sessionStore,
		hubs:  make(map[string]*Hub),
	}
}

// GetOrCreate returns an existing hub or creates a new one for the session.
func (m *HubManager) GetOrCreate(sessionID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[sessionID]; ok {
		return hub
	}

	hub := NewHub(sessionID, m.store)
	m.hubs[sessionID] = hub
	return hub
}

// Get returns the hub for the session, or nil if not found.
func (m *HubManager) Get(sessionID string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[sessionID]
}

// ClientCount returns the number of clients bound to the session's room,
// or zero if the room has never been created.
func (m *HubManager) ClientCount(sessionID string) int {
	if hub := m.Get(sessionID); hub != nil {
		return hub.ClientCount()
	}
	return 0
}

// Close closes all hubs.
func (m *HubManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hub := range m.hubs {
		hub.Close()
	}
	m.hubs = make(map[string]*Hub)
}
