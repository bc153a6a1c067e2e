package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oro-os/backend/internal/model"
)

// Registry is the authoritative store of connected participants and the
// session chat history. All methods are safe for concurrent use and each
// one is atomic with respect to the others.
//
// The chat history is append-only and is kept for the lifetime of the
// process.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]model.Participant
	history      []model.ChatEvent
	now          func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used to stamp joins and chat events.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		participants: make(map[string]model.Participant),
		history:      make([]model.ChatEvent, 0, 64),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register records a newly connected participant.
func (r *Registry) Register(id string) (model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[id]; exists {
		return model.Participant{}, fmt.Errorf("register %q: %w", id, model.ErrDuplicateID)
	}

	p := model.Participant{
		ID:       id,
		JoinedAt: r.now(),
	}
	r.participants[id] = p
	return p, nil
}

// Unregister removes a participant. It reports whether the participant was
// present; removing an absent id is not an error.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[id]; !exists {
		return false
	}
	delete(r.participants, id)
	return true
}

// Get returns the participant with the given id.
func (r *Registry) Get(id string) (model.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[id]
	return p, ok
}

// ListParticipants returns a snapshot of the current members ordered by
// join time.
func (r *Registry) ListParticipants() []model.Participant {
	r.mu.RLock()
	list := make([]model.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		list = append(list, p)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list
}

// Count returns the number of connected participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// AppendChat stamps the event and appends it to the history. SenderID and
// ReceivedAt are only filled in when the event does not already carry them;
// Seq is always assigned. The returned value is the stored event and is what
// should be relayed.
func (r *Registry) AppendChat(senderID string, ev model.ChatEvent) model.ChatEvent {
	ev = ev.Clone()
	if ev.SenderID == "" {
		ev.SenderID = senderID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = r.now()
	}
	ev.Seq = uint64(len(r.history)) + 1
	r.history = append(r.history, ev)

	return ev.Clone()
}

// ChatSnapshot returns a copy of the full chat history in arrival order.
// Changes to the returned slice or its payloads do not affect the registry.
func (r *Registry) ChatSnapshot() []model.ChatEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]model.ChatEvent, len(r.history))
	for i, ev := range r.history {
		snapshot[i] = ev.Clone()
	}
	return snapshot
}

// ChatLen returns the number of events in the chat history.
func (r *Registry) ChatLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.history)
}
