package connector

import "time"

// Config controls how the connector dials and reconnects.
type Config struct {
	// URL is the session's WebSocket address, e.g.
	// ws://localhost:8080/ws/<session-id>.
	URL string

	// MaxReconnectAttempts bounds automatic reconnection after unexpected
	// closes. Once reached, the connector stays disconnected.
	MaxReconnectAttempts int

	// BackoffBase is the delay before the first reconnect attempt. Each
	// subsequent attempt doubles it, up to BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// DefaultConfig returns sensible defaults. Callers typically set URL and
// leave the rest alone.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 5,
		BackoffBase:          1 * time.Second,
		BackoffCap:           10 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
	}
}

// reconnectDelay returns the backoff before reconnect attempt number
// attempt (zero-based): min(base * 2^attempt, cap).
func reconnectDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.BackoffBase << uint(attempt)
	if delay > cfg.BackoffCap || delay <= 0 {
		delay = cfg.BackoffCap
	}
	return delay
}
