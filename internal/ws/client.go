package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/oro-os/backend/internal/model"
)

// Client is one participant's live connection. Outbound frames go through a
// buffered queue drained by the connection's write pump, so enqueueing never
// waits on the network.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient creates a client with an outbound queue of bufferSize frames.
func NewClient(id string, conn *websocket.Conn, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, bufferSize),
	}
}

// ID returns the participant id of this connection.
func (c *Client) ID() string {
	return c.id
}

// Send queues a frame for delivery. A full queue closes the client.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked()
		return model.ErrSendQueueFull
	}
}

// Close closes the outbound queue. The write pump then closes the socket.
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

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the outbound queue.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}
