package model

import (
	"encoding/json"
	"time"
)

// ChatEvent is a chat message as stored in the session history.
// Payload is the application-defined message; the remaining fields are
// stamped by the server when the event is received.
type ChatEvent struct {
	Seq        uint64          `json:"seq"`
	SenderID   string          `json:"senderId"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Clone returns a copy of the event that shares no memory with e.
func (e ChatEvent) Clone() ChatEvent {
	if e.Payload != nil {
		payload := make(json.RawMessage, len(e.Payload))
		copy(payload, e.Payload)
		e.Payload = payload
	}
	return e
}
