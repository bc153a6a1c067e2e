package ws

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/oro-os/backend/internal/model"
)

// MessageType is the event name carried by every frame.
type MessageType string

const (
	// Client -> Server
	MessageTypePing MessageType = "ping"

	// Both directions
	MessageTypeChatMessage  MessageType = "chat_message"
	MessageTypeDesignUpdate MessageType = "design_update"

	// Server -> Client
	MessageTypeChatHistory MessageType = "chat_history"
	MessageTypePong        MessageType = "pong"
	MessageTypeError       MessageType = "error"
)

// Message is the envelope of every WebSocket frame.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the payload of an error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// encodeMessage wraps payload in an envelope of the given type.
func encodeMessage(msgType MessageType, payload any) ([]byte, error) {
	msg := Message{Type: msgType}
	if payload != nil {
		raw, ok := payload.(json.RawMessage)
		if !ok {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
			}
			raw = data
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

// decodeMessage parses an inbound frame. Anything a client is not allowed to
// send is reported as model.ErrMalformedEvent.
func decodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedEvent, err)
	}

	switch msg.Type {
	case MessageTypeChatMessage, MessageTypeDesignUpdate:
		if isEmptyPayload(msg.Payload) {
			return nil, fmt.Errorf("%w: %s without payload", model.ErrMalformedEvent, msg.Type)
		}
	case MessageTypePing:
	case "":
		return nil, fmt.Errorf("%w: missing type", model.ErrMalformedEvent)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", model.ErrMalformedEvent, msg.Type)
	}

	return &msg, nil
}

func isEmptyPayload(p json.RawMessage) bool {
	trimmed := bytes.TrimSpace(p)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
