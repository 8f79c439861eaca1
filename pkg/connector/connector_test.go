package connector

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testServer accepts WebSocket upgrades and hands the server side of each
// connection to the test.
type testServer struct {
	*httptest.Server
	conns chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	upgrader := websocket.Upgrader{}
	ts := &testServer{conns: make(chan *websocket.Conn, 16)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// accept waits for the next client connection to arrive at the server.
func (ts *testServer) accept(t *testing.T, timeout time.Duration) *websocket.Conn {
	t.Helper()

	select {
	case conn := <-ts.conns:
		return conn
	case <-time.After(timeout):
		t.Fatal("no connection arrived at the server")
		return nil
	}
}

// expectNoConn asserts no new connection arrives within the window.
func (ts *testServer) expectNoConn(t *testing.T, window time.Duration) {
	t.Helper()

	select {
	case <-ts.conns:
		t.Fatal("unexpected connection arrived at the server")
	case <-time.After(window):
	}
}

// fastPolicy keeps reconnect delays tiny so tests run quickly.
func fastPolicy(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.BackoffBase = 5 * time.Millisecond
	cfg.BackoffCap = 10 * time.Millisecond
	return cfg
}

// waitForState polls until the connector reaches the state or times out.
func waitForState(t *testing.T, c *Connector, want State, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("connector never reached %s, stuck in %s", want, c.State())
}

func TestConnectAndReceiveSessionState(t *testing.T) {
	ts := newTestServer(t)

	c := New(fastPolicy(ts.wsURL()))
	defer c.Disconnect()

	received := make(chan Message, 16)
	countsSeen := make(chan int, 16)
	c.OnMessage(func(msg Message) {
		// Presence is updated before the message is forwarded.
		countsSeen <- c.UserCount()
		received <- msg
	})

	c.Connect()
	server := ts.accept(t, time.Second)
	defer server.Close()
	waitForState(t, c, StateConnected, time.Second)

	frame := `{"type":"session_state","data":{"code":"print(1)","language":"python","active_users":3}}`
	if err := server.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Type != MessageTypeSessionState {
			t.Fatalf("expected session_state, got %s", msg.Type)
		}
		var state SessionStatePayload
		if err := json.Unmarshal(msg.Data, &state); err != nil {
			t.Fatalf("failed to unmarshal payload: %v", err)
		}
		if state.Code != "print(1)" || state.ActiveUsers != 3 {
			t.Errorf("unexpected payload: %+v", state)
		}
	case <-time.After(time.Second):
		t.Fatal("message was never forwarded")
	}

	if count := <-countsSeen; count != 3 {
		t.Errorf("expected presence 3 at forward time, got %d", count)
	}
}

func TestPresenceFollowsJoinLeave(t *testing.T) {
	ts := newTestServer(t)

	c := New(fastPolicy(ts.wsURL()))
	defer c.Disconnect()

	received := make(chan Message, 16)
	c.OnMessage(func(msg Message) { received <- msg })

	c.Connect()
	server := ts.accept(t, time.Second)
	defer server.Close()
	waitForState(t, c, StateConnected, time.Second)

	for _, frame := range []string{
		`{"type":"user_joined","data":{"user_count":2}}`,
		`{"type":"user_left","data":{"user_count":1}}`,
	} {
		if err := server.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("failed to write frame: %v", err)
		}
		select {
		case <-received:
		case <-time.After(time.Second):
			t.Fatal("presence message was never forwarded")
		}
	}

	if c.UserCount() != 1 {
		t.Errorf("expected presence 1, got %d", c.UserCount())
	}
}

func TestSendMessageWhenDisconnectedIsNoop(t *testing.T) {
	c := New(Config{URL: "ws://localhost:1/ws/x"})

	// Must not panic, error, or change state.
	c.SendMessage(Message{Type: MessageTypeCodeUpdate})
	c.SendCodeUpdate("x = 1")

	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
}

func TestSendCodeUpdateDelivered(t *testing.T) {
	ts := newTestServer(t)

	c := New(fastPolicy(ts.wsURL()))
	defer c.Disconnect()

	c.Connect()
	server := ts.accept(t, time.Second)
	defer server.Close()
	waitForState(t, c, StateConnected, time.Second)

	c.SendCodeUpdate("print(2)")

	server.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("server never received the update: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("failed to unmarshal frame: %v", err)
	}
	if msg.Type != MessageTypeCodeUpdate {
		t.Fatalf("expected code_update, got %s", msg.Type)
	}
	var update CodeUpdatePayload
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if update.Code != "print(2)" {
		t.Errorf("expected code print(2), got %q", update.Code)
	}
	if update.Timestamp == "" {
		t.Error("expected a timestamp")
	}
}

func TestReconnectAfterUnexpectedClose(t *testing.T) {
	ts := newTestServer(t)

	c := New(fastPolicy(ts.wsURL()))
	defer c.Disconnect()

	c.Connect()
	first := ts.accept(t, time.Second)
	waitForState(t, c, StateConnected, time.Second)

	// Abrupt close, no close handshake.
	first.Close()

	second := ts.accept(t, time.Second)
	defer second.Close()
	waitForState(t, c, StateConnected, time.Second)

	// The reconnected transport works.
	c.SendCodeUpdate("still here")
	second.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := second.ReadMessage(); err != nil {
		t.Fatalf("reconnected transport is dead: %v", err)
	}
}

func TestRetriesExhausted(t *testing.T) {
	var dials atomic.Int32
	refusing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "no", http.StatusNotFound)
	}))
	defer refusing.Close()

	cfg := fastPolicy("ws" + strings.TrimPrefix(refusing.URL, "http"))
	cfg.MaxReconnectAttempts = 3
	c := New(cfg)

	c.Connect()

	// 1 initial dial + 3 scheduled retries, then terminal.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && dials.Load() < 4 {
		time.Sleep(time.Millisecond)
	}
	if got := dials.Load(); got != 4 {
		t.Fatalf("expected 4 dials, got %d", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := dials.Load(); got != 4 {
		t.Errorf("a dial happened after retries were exhausted: %d", got)
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected terminal disconnected, got %s", c.State())
	}
}

func TestDisconnectIsTerminal(t *testing.T) {
	ts := newTestServer(t)

	cfg := fastPolicy(ts.wsURL())
	cfg.BackoffBase = 50 * time.Millisecond
	cfg.BackoffCap = 50 * time.Millisecond
	c := New(cfg)

	c.Connect()
	server := ts.accept(t, time.Second)
	waitForState(t, c, StateConnected, time.Second)

	// Server drops the connection; a reconnect timer is now pending.
	server.Close()
	waitForState(t, c, StateDisconnected, time.Second)

	// Explicit disconnect while the timer is in flight.
	c.Disconnect()

	ts.expectNoConn(t, 200*time.Millisecond)
	if c.State() != StateDisconnected {
		t.Errorf("expected terminal disconnected, got %s", c.State())
	}
}

func TestDisconnectWhileConnected(t *testing.T) {
	ts := newTestServer(t)

	c := New(fastPolicy(ts.wsURL()))

	c.Connect()
	server := ts.accept(t, time.Second)
	waitForState(t, c, StateConnected, time.Second)

	c.Disconnect()

	// The server observes the close; no reconnect follows.
	server.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := server.ReadMessage(); err == nil {
		t.Error("expected the server to observe a close")
	}
	ts.expectNoConn(t, 100*time.Millisecond)
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
}

func TestMalformedFrameNeverReachesCallback(t *testing.T) {
	ts := newTestServer(t)

	c := New(fastPolicy(ts.wsURL()))
	defer c.Disconnect()

	received := make(chan Message, 16)
	c.OnMessage(func(msg Message) { received <- msg })

	c.Connect()
	server := ts.accept(t, time.Second)
	defer server.Close()
	waitForState(t, c, StateConnected, time.Second)

	if err := server.WriteMessage(websocket.TextMessage, []byte("this is not json")); err != nil {
		t.Fatalf("failed to write garbage: %v", err)
	}

	select {
	case msg := <-received:
		t.Fatalf("malformed frame reached the callback as %s", msg.Type)
	case <-time.After(100 * time.Millisecond):
	}

	// The connection survived the garbage.
	if c.State() != StateConnected {
		t.Fatalf("connection did not survive, state %s", c.State())
	}
	frame := `{"type":"user_joined","data":{"user_count":2}}`
	if err := server.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
	select {
	case msg := <-received:
		if msg.Type != MessageTypeUserJoined {
			t.Errorf("expected user_joined, got %s", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("valid frame after garbage was never forwarded")
	}
}

func TestReplacingCallbackKeepsTransport(t *testing.T) {
	ts := newTestServer(t)

	c := New(fastPolicy(ts.wsURL()))
	defer c.Disconnect()

	c.OnMessage(func(Message) {})

	c.Connect()
	server := ts.accept(t, time.Second)
	defer server.Close()
	waitForState(t, c, StateConnected, time.Second)

	replaced := make(chan Message, 1)
	c.OnMessage(func(msg Message) { replaced <- msg })

	if c.State() != StateConnected {
		t.Fatalf("replacing the callback changed the state to %s", c.State())
	}

	frame := `{"type":"cursor_position","data":{"x":1}}`
	if err := server.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}

	select {
	case msg := <-replaced:
		// Unknown types are forwarded untouched.
		if msg.Type != "cursor_position" {
			t.Errorf("expected cursor_position, got %s", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("replacement callback never received the frame")
	}
	ts.expectNoConn(t, 50*time.Millisecond)
}

func TestStateTransitionsReported(t *testing.T) {
	ts := newTestServer(t)

	c := New(fastPolicy(ts.wsURL()))

	states := make(chan State, 16)
	c.OnStateChange(func(s State) { states <- s })

	c.Connect()
	server := ts.accept(t, time.Second)

	expectState := func(want State) {
		t.Helper()
		select {
		case got := <-states:
			if got != want {
				t.Fatalf("expected state %s, got %s", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("state %s never reported", want)
		}
	}

	expectState(StateConnecting)
	expectState(StateConnected)

	server.Close()
	// Abrupt close surfaces as an error, then disconnected.
	expectState(StateError)
	expectState(StateDisconnected)

	c.Disconnect()
}
