package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oro-os/backend/internal/model"
	"github.com/oro-os/backend/internal/session"
)

// Recorder receives connection lifecycle notifications, e.g. for auditing.
// Calls are made from a single background worker in the order the hub saw
// the events; errors are logged and otherwise ignored.
type Recorder interface {
	RecordJoin(ctx context.Context, p model.Participant) error
	RecordLeave(ctx context.Context, id string, leftAt time.Time) error
	RecordChat(ctx context.Context, ev model.ChatEvent) error
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithRecorder attaches a Recorder to the hub.
func WithRecorder(r Recorder) HubOption {
	return func(h *Hub) {
		h.recorder = r
	}
}

// Hub owns the routing table of live connections and relays events between
// them. Membership in the routing table and in the registry change together
// under mu, and every relay runs under mu as well, so a joiner's history
// snapshot and the relays it receives afterwards never overlap or leave a gap.
type Hub struct {
	registry *session.Registry
	recorder Recorder
	audit    *auditQueue
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates a hub backed by the given registry.
func NewHub(registry *session.Registry, logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		registry: registry,
		logger:   logger.With("component", "hub"),
		clients:  make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.recorder != nil {
		h.audit = newAuditQueue(auditQueueSize, h.logger)
	}
	return h
}

// Join registers the client and queues the chat history as its first frame.
// From the moment Join returns the client receives every relayed event.
func (h *Hub) Join(client *Client) (model.Participant, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return model.Participant{}, model.ErrHubClosed
	}

	p, err := h.registry.Register(client.ID())
	if err != nil {
		h.mu.Unlock()
		return model.Participant{}, err
	}

	history := h.registry.ChatSnapshot()
	data, err := encodeMessage(MessageTypeChatHistory, history)
	if err == nil {
		err = client.Send(data)
	}
	if err != nil {
		h.registry.Unregister(client.ID())
		h.mu.Unlock()
		return model.Participant{}, fmt.Errorf("send chat history: %w", err)
	}

	h.clients[client.ID()] = client
	count := len(h.clients)
	h.recordLocked("join", p.ID, func(ctx context.Context) error { return h.recorder.RecordJoin(ctx, p) })
	h.mu.Unlock()

	h.logger.Info("participant joined",
		"participant_id", p.ID,
		"history_len", len(history),
		"participants", count)

	return p, nil
}

// Leave removes the participant and closes its queue. It is safe to call
// more than once; it reports whether anything was removed.
func (h *Hub) Leave(id string) bool {
	h.mu.Lock()
	removed := h.removeLocked(id)
	count := len(h.clients)
	h.mu.Unlock()

	if !removed {
		return false
	}

	h.logger.Info("participant left", "participant_id", id, "participants", count)
	return true
}

// RelayChat appends the payload to the chat history and relays the stored
// event to every other participant. The stored event is returned.
func (h *Hub) RelayChat(sender *Client, payload json.RawMessage) (model.ChatEvent, error) {
	h.mu.Lock()
	if err := h.checkSenderLocked(sender); err != nil {
		h.mu.Unlock()
		return model.ChatEvent{}, err
	}

	ev := h.registry.AppendChat(sender.ID(), model.ChatEvent{Payload: payload})
	data, err := encodeMessage(MessageTypeChatMessage, ev)
	if err != nil {
		h.mu.Unlock()
		return ev, err
	}
	delivered, evicted := h.broadcastLocked(sender.ID(), data)
	h.recordLocked("chat", ev.SenderID, func(ctx context.Context) error { return h.recorder.RecordChat(ctx, ev) })
	h.mu.Unlock()

	h.logger.Debug("chat relayed",
		"sender_id", sender.ID(),
		"seq", ev.Seq,
		"recipients", delivered)
	h.afterBroadcast(evicted)

	return ev, nil
}

// RelayDesign relays the payload verbatim to every other participant. Design
// updates are never stored. It returns the number of recipients.
func (h *Hub) RelayDesign(sender *Client, payload json.RawMessage) (int, error) {
	data, err := encodeMessage(MessageTypeDesignUpdate, payload)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	if err := h.checkSenderLocked(sender); err != nil {
		h.mu.Unlock()
		return 0, err
	}
	delivered, evicted := h.broadcastLocked(sender.ID(), data)
	h.mu.Unlock()

	h.logger.Debug("design update relayed", "sender_id", sender.ID(), "recipients", delivered)
	h.afterBroadcast(evicted)

	return delivered, nil
}

// Count returns the number of connected participants.
func (h *Hub) Count() int {
	return h.registry.Count()
}

// Participants returns a snapshot of the connected participants.
func (h *Hub) Participants() []model.Participant {
	return h.registry.ListParticipants()
}

// HistoryLen returns the number of stored chat events.
func (h *Hub) HistoryLen() int {
	return h.registry.ChatLen()
}

// Close disconnects every client and rejects further joins. It returns once
// every pending audit record has been handed to the Recorder.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	for _, id := range ids {
		h.removeLocked(id)
	}
	h.mu.Unlock()

	if h.audit != nil {
		h.audit.close()
	}
	h.logger.Info("hub closed", "disconnected", len(ids))
}

func (h *Hub) checkSenderLocked(sender *Client) error {
	if h.closed {
		return model.ErrHubClosed
	}
	if current, ok := h.clients[sender.ID()]; !ok || current != sender {
		return fmt.Errorf("relay from %q: %w", sender.ID(), model.ErrParticipantNotFound)
	}
	return nil
}

// broadcastLocked queues data for every client except the sender. Recipients
// whose queue rejects the frame are removed; their ids are returned so the
// caller can log them after releasing the lock.
func (h *Hub) broadcastLocked(senderID string, data []byte) (delivered int, evicted []string) {
	for id, client := range h.clients {
		if id == senderID {
			continue
		}
		if err := client.Send(data); err != nil {
			h.logger.Warn("relay delivery failed", "participant_id", id, "error", err)
			evicted = append(evicted, id)
			continue
		}
		delivered++
	}
	for _, id := range evicted {
		h.removeLocked(id)
	}
	return delivered, evicted
}

func (h *Hub) afterBroadcast(evicted []string) {
	for _, id := range evicted {
		h.logger.Info("participant dropped after failed delivery", "participant_id", id)
	}
}

func (h *Hub) removeLocked(id string) bool {
	client, ok := h.clients[id]
	if !ok {
		return false
	}
	delete(h.clients, id)
	h.registry.Unregister(id)
	client.Close()

	leftAt := time.Now()
	h.recordLocked("leave", id, func(ctx context.Context) error { return h.recorder.RecordLeave(ctx, id, leftAt) })
	return true
}

// recordLocked queues a Recorder call. Queueing under mu keeps a
// participant's join, chats and leave in order.
func (h *Hub) recordLocked(kind, id string, fn func(ctx context.Context) error) {
	if h.audit == nil {
		return
	}
	h.audit.enqueue(auditJob{kind: kind, id: id, fn: fn})
}
