// Package connector provides the client side of a collaborative coding
// session: one logical WebSocket connection to a session room, with
// automatic reconnection, presence tracking, and message forwarding.
package connector

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connector owns exactly one logical connection to a session room. It
// dials, forwards incoming messages to the application, and reconnects
// with exponential backoff after unexpected closes. An explicit
// Disconnect is terminal: no timer or callback fires afterward.
type Connector struct {
	cfg Config

	mu              sync.Mutex
	writeMu         sync.Mutex
	state           State
	conn            *websocket.Conn
	shouldReconnect bool
	attempts        int
	timer           *time.Timer
	userCount       int
	onMessage       func(Message)
	onStateChange   func(State)
}

// New creates a connector for the given config. Zero-valued policy fields
// fall back to DefaultConfig.
func New(cfg Config) *Connector {
	def := DefaultConfig()
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffCap == 0 {
		cfg.BackoffCap = def.BackoffCap
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Connector{cfg: cfg, state: StateDisconnected}
}

// OnMessage registers the callback for incoming messages. It may be
// replaced at any time; doing so never disturbs the transport or the
// retry counter.
func (c *Connector) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnStateChange registers the callback for state transitions.
func (c *Connector) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onStateChange = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserCount returns the most recent presence count reported by the room.
func (c *Connector) UserCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userCount
}

// Connect starts the connection. It arms automatic reconnection and
// returns immediately; progress is reported through OnStateChange.
func (c *Connector) Connect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		log.Printf("connector: Connect ignored in state %s", c.state)
		return
	}
	c.shouldReconnect = true
	c.attempts = 0
	c.mu.Unlock()

	go c.connect()
}

// Disconnect closes the connection for good: the reconnect flag is
// cleared, any pending reconnect timer is cancelled, and the transport is
// closed if open. The connector stays disconnected; no automatic
// reconnect occurs afterward, even if a timer was already in flight.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	c.shouldReconnect = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	notify.fire()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteTimeout))
		conn.Close()
	}
}

// SendMessage sends a message to the room. Outside the connected state it
// is a no-op that logs a warning; it never panics or returns an error to
// the caller.
func (c *Connector) SendMessage(msg Message) {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		log.Printf("connector: not connected, dropping %s message", msg.Type)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("connector: failed to marshal %s message: %v", msg.Type, err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("connector: write failed: %v", err)
	}
}

// SendCodeUpdate frames and sends a code_update for the given code,
// stamped with the current time.
func (c *Connector) SendCodeUpdate(code string) {
	payload, err := json.Marshal(&CodeUpdatePayload{
		Code:      code,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		log.Printf("connector: failed to marshal code update: %v", err)
		return
	}
	c.SendMessage(Message{Type: MessageTypeCodeUpdate, Data: payload})
}

// connect dials the room. On failure the close handling runs, which
// schedules the next attempt if reconnection is still armed.
func (c *Connector) connect() {
	c.mu.Lock()
	if !c.shouldReconnect || c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify.fire()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.Dial(c.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		log.Printf("connector: dial failed: %v", err)
		c.transportClosed(nil, err)
		return
	}

	c.mu.Lock()
	if !c.shouldReconnect {
		// Disconnected while the dial was in flight.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	notify = c.setStateLocked(StateConnected)
	c.mu.Unlock()
	notify.fire()

	go c.readLoop(conn)
}

// readLoop reads frames until the transport closes. Unparsable frames are
// logged and dropped without invoking the application callback; the
// connection survives them.
func (c *Connector) readLoop(conn *websocket.Conn) {
	var closeErr error
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeErr = err
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("connector: discarding unparsable frame: %v", err)
			continue
		}

		c.dispatch(msg)
	}

	conn.Close()
	c.transportClosed(conn, closeErr)
}

// dispatch updates the presence count for presence-bearing messages, then
// forwards the full message to the application. Unknown types are
// forwarded untouched.
func (c *Connector) dispatch(msg Message) {
	switch msg.Type {
	case MessageTypeSessionState:
		var p SessionStatePayload
		if json.Unmarshal(msg.Data, &p) == nil {
			c.mu.Lock()
			c.userCount = p.ActiveUsers
			c.mu.Unlock()
		}
	case MessageTypeUserJoined, MessageTypeUserLeft:
		var p PresencePayload
		if json.Unmarshal(msg.Data, &p) == nil {
			c.mu.Lock()
			c.userCount = p.UserCount
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// transportClosed handles a close of the given transport, from either
// side. It schedules a reconnect when the flag is armed and attempts
// remain; otherwise the connector stays disconnected.
func (c *Connector) transportClosed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if conn != nil && c.conn != conn {
		// Stale close: an explicit Disconnect already took ownership.
		c.mu.Unlock()
		return
	}
	c.conn = nil

	var notices []notice
	wasLive := c.state == StateConnecting || c.state == StateConnected
	if err != nil && wasLive && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		// Dial failures and abrupt terminations surface as an error
		// before the disconnect, like a browser socket's error event.
		// A close that arrives after an explicit Disconnect stays silent.
		notices = append(notices, c.setStateLocked(StateError))
	}
	notices = append(notices, c.setStateLocked(StateDisconnected))

	if c.shouldReconnect && c.attempts < c.cfg.MaxReconnectAttempts {
		delay := reconnectDelay(c.cfg, c.attempts)
		c.attempts++
		log.Printf("connector: reconnecting in %v (attempt %d)", delay, c.attempts)
		c.timer = time.AfterFunc(delay, c.connect)
	}
	c.mu.Unlock()

	for _, n := range notices {
		n.fire()
	}
}

// notice is a deferred state-change callback, built under the lock and
// fired after it is released so callbacks can call back into the
// connector.
type notice func()

func (n notice) fire() {
	if n != nil {
		n()
	}
}

// setStateLocked transitions the state and returns the callback to fire
// once the lock is released. Callers hold c.mu.
func (c *Connector) setStateLocked(next State) notice {
	if c.state == next {
		return nil
	}
	c.state = next
	fn := c.onStateChange
	if fn == nil {
		return nil
	}
	return func() { fn(next) }
}
