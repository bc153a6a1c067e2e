package ws

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/oro-os/backend/internal/model"
)

// Config holds the per-connection timing and sizing limits.
type Config struct {
	// Time allowed to write a frame to the peer.
	WriteWait time.Duration

	// Time allowed to read the next frame or pong from the peer.
	PongWait time.Duration

	// Maximum inbound frame size.
	MaxMessageSize int64

	// Outbound queue length per client.
	SendBuffer int

	// Origins allowed to open a connection. Empty or "*" allows any origin.
	AllowedOrigins []string
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

// pingPeriod must be less than PongWait.
func (c Config) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// Handler upgrades HTTP requests and runs the per-connection loops.
type Handler struct {
	hub      *Hub
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
	newID    func() string
}

// NewHandler creates a handler serving connections for hub.
func NewHandler(hub *Hub, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		hub:    hub,
		cfg:    cfg,
		logger: logger.With("component", "ws"),
		newID:  func() string { return uuid.New().String() },
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Hub returns the hub served by this handler.
func (h *Handler) Hub() *Hub {
	return h.hub
}

// HandleConnection upgrades the request, runs the join protocol and starts
// the read and write pumps. It returns once the pumps are running.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(h.newID(), conn, h.cfg.SendBuffer)

	if _, err := h.hub.Join(client); err != nil {
		h.logger.Error("join rejected", "participant_id", client.ID(), "error", err)
		h.rejectJoin(conn, err)
		return fmt.Errorf("join: %w", err)
	}

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// rejectJoin tells the client why it was refused and closes the socket.
func (h *Handler) rejectJoin(conn *websocket.Conn, cause error) {
	defer conn.Close()

	code := "JOIN_FAILED"
	switch {
	case errors.Is(cause, model.ErrDuplicateID):
		code = "DUPLICATE_ID"
	case errors.Is(cause, model.ErrHubClosed):
		code = "SHUTTING_DOWN"
	}

	data, err := encodeMessage(MessageTypeError, ErrorPayload{Code: code, Message: cause.Error()})
	if err != nil {
		return
	}

	deadline := time.Now().Add(h.cfg.WriteWait)
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseTryAgainLater, code), deadline)
}

// readPump reads frames from the connection and dispatches them until the
// connection fails or goes silent for longer than PongWait.
func (h *Handler) readPump(client *Client) {
	conn := client.Conn()
	defer func() {
		h.hub.Leave(client.ID())
		conn.Close()
	}()

	conn.SetReadLimit(h.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("connection closed", "participant_id", client.ID(), "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		msg, err := decodeMessage(data)
		if err != nil {
			h.logger.Warn("dropping inbound event", "participant_id", client.ID(), "error", err)
			continue
		}

		h.dispatch(client, msg)
	}
}

// dispatch applies the handling rule for one inbound event.
func (h *Handler) dispatch(client *Client, msg *Message) {
	switch msg.Type {
	case MessageTypeChatMessage:
		if _, err := h.hub.RelayChat(client, msg.Payload); err != nil {
			h.logger.Warn("chat message not relayed", "participant_id", client.ID(), "error", err)
		}
	case MessageTypeDesignUpdate:
		if _, err := h.hub.RelayDesign(client, msg.Payload); err != nil {
			h.logger.Warn("design update not relayed", "participant_id", client.ID(), "error", err)
		}
	case MessageTypePing:
		h.sendPong(client)
	}
}

func (h *Handler) sendPong(client *Client) {
	data, err := encodeMessage(MessageTypePong, nil)
	if err != nil {
		return
	}
	if err := client.Send(data); err != nil {
		h.logger.Debug("pong not sent", "participant_id", client.ID(), "error", err)
	}
}

// writePump drains the client's queue onto the connection, one frame per
// message, and keeps the connection alive with pings.
func (h *Handler) writePump(client *Client) {
	conn := client.Conn()
	ticker := time.NewTicker(h.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				// The hub closed the queue.
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("write failed", "participant_id", client.ID(), "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	h.logger.Warn("rejected websocket origin", "origin", origin)
	return false
}
