// Package ws provides WebSocket connection handling and message routing
// for collaborative coding sessions.
//
// The package implements:
//   - Hub: Owns one session's room — bound clients, presence, broadcasts
//   - HubManager: Manages the hubs for all sessions
//   - Handler: Upgrades connections, frames messages, runs the pumps
//   - Client: One WebSocket connection with a buffered send queue
//
// Key behaviors:
//   - session_state snapshot sent to a client immediately on bind
//   - user_joined / user_left presence fan-out, sender excluded
//   - code_update overwrites the canonical code (last writer wins) and is
//     rebroadcast to every client except the sender
//   - Unparsable frames are logged and discarded; the connection survives
//   - Delivery to each client goes through its own buffered queue, so one
//     slow or dead connection never blocks the room or its siblings
package ws
