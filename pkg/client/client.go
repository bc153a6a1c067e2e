// Package client is a small Go client for the collaboration hub's WebSocket
// protocol.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oro-os/backend/internal/model"
	"github.com/oro-os/backend/internal/ws"
)

// Re-export wire types for external use
type (
	Message      = ws.Message
	MessageType  = ws.MessageType
	ErrorPayload = ws.ErrorPayload
	ChatEvent    = model.ChatEvent
)

const (
	MessageTypeChatMessage  = ws.MessageTypeChatMessage
	MessageTypeDesignUpdate = ws.MessageTypeDesignUpdate
	MessageTypeChatHistory  = ws.MessageTypeChatHistory
	MessageTypePing         = ws.MessageTypePing
	MessageTypePong         = ws.MessageTypePong
	MessageTypeError        = ws.MessageTypeError
)

// defaultJoinTimeout bounds the wait for chat_history when ctx has no deadline.
const defaultJoinTimeout = 10 * time.Second

// ErrClosed is returned by Next once the connection is gone.
var ErrClosed = errors.New("connection closed")

// JoinError is returned by Dial when the server refuses the join.
type JoinError struct {
	Code    string
	Message string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join refused: %s: %s", e.Code, e.Message)
}

// Client is one participant connection.
type Client struct {
	conn    *websocket.Conn
	history []ChatEvent

	incoming chan Message
	closing  chan struct{}
	done     chan struct{}
	err      error

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to url, waits for the chat history and starts reading.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultJoinTimeout)
	}
	conn.SetReadDeadline(deadline)

	var first Message
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read chat history: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:     conn,
		incoming: make(chan Message, 256),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	switch first.Type {
	case MessageTypeChatHistory:
		if err := json.Unmarshal(first.Payload, &c.history); err != nil {
			conn.Close()
			return nil, fmt.Errorf("decode chat history: %w", err)
		}
	case MessageTypeError:
		conn.Close()
		var p ErrorPayload
		json.Unmarshal(first.Payload, &p)
		return nil, &JoinError{Code: p.Code, Message: p.Message}
	default:
		conn.Close()
		return nil, fmt.Errorf("expected %s, got %s", MessageTypeChatHistory, first.Type)
	}

	go c.readLoop()
	return c, nil
}

// History returns the chat events received on join.
func (c *Client) History() []ChatEvent {
	out := make([]ChatEvent, len(c.history))
	for i, ev := range c.history {
		out[i] = ev.Clone()
	}
	return out
}

// SendChat sends a chat message. payload is marshalled to JSON unless it is
// already a json.RawMessage.
func (c *Client) SendChat(payload any) error {
	return c.send(MessageTypeChatMessage, payload)
}

// SendDesign sends a design update.
func (c *Client) SendDesign(payload any) error {
	return c.send(MessageTypeDesignUpdate, payload)
}

// Ping asks the server for an application-level pong.
func (c *Client) Ping() error {
	return c.send(MessageTypePing, nil)
}

// Next returns the next frame from the server.
func (c *Client) Next(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-c.incoming:
		if !ok {
			return Message{}, c.err
		}
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		<-c.done
	})
	return err
}

func (c *Client) send(msgType MessageType, payload any) error {
	msg := Message{Type: msgType}
	if payload != nil {
		raw, ok := payload.(json.RawMessage)
		if !ok {
			data, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("marshal %s payload: %w", msgType, err)
			}
			raw = data
		}
		msg.Payload = raw
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.incoming)

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.err = fmt.Errorf("%w: %v", ErrClosed, err)
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.closing:
			c.err = ErrClosed
			return
		}
	}
}
