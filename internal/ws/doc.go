// Package ws provides the real-time collaboration hub and its WebSocket
// transport.
//
// The package implements:
//   - Hub: routing table of live connections, join protocol and relay
//   - Client: one connection's outbound queue
//   - Handler: upgrade, per-connection read and write pumps, event dispatch
//
// Key behaviour:
//   - A joining client first receives the whole chat history as one
//     chat_history frame, then every event relayed after its join.
//   - chat_message events are stamped, stored and relayed to everyone but
//     the sender. design_update events are relayed verbatim and never stored.
//   - Each recipient has its own queue and write goroutine; a slow recipient
//     is dropped instead of stalling the rest.
//   - Malformed frames are dropped without affecting the connection.
package ws
