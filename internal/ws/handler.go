package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

// Handler accepts WebSocket upgrades, binds each connection to the right
// hub by session ID, frames outbound payloads, and forwards parsed frames
// to the hub.
type Handler struct {
	hubManager *HubManager
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hubManager *HubManager) *Handler {
	return &Handler{hubManager: hubManager}
}

// HubManager returns the hub manager.
func (h *Handler) HubManager() *HubManager {
	return h.hubManager
}

// HandleConnection handles a new WebSocket connection for a session.
// The caller is expected to have verified that the session exists; the
// bind is re-checked here and a stale session closes the connection
// rather than silently dropping it.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	hub := h.hubManager.GetOrCreate(sessionID)
	client := NewClient(hub, conn, sessionID)

	if err := hub.Bind(client); err != nil {
		log.Printf("Refusing connection to session %s: %v", sessionID, err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session not found"))
		conn.Close()
		return err
	}

	go h.writePump(client)
	go h.readPump(client, hub)

	return nil
}

// readPump pumps frames from the WebSocket connection to the hub. It owns
// the unbind: whichever side closes the transport, Unbind runs exactly
// once when the read loop exits.
func (h *Handler) readPump(client *Client, hub *Hub) {
	defer func() {
		hub.Unbind(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error in session %s: %v", client.SessionID(), err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Protocol error: the frame is discarded, the connection survives.
			log.Printf("Discarding unparsable frame in session %s: %v", client.SessionID(), err)
			continue
		}

		hub.HandleMessage(client, &msg)
	}
}

// writePump pumps queued messages from the hub to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message so clients can JSON-parse each read.
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queuedMsg := <-client.SendChan()
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.TextMessage, queuedMsg); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}
