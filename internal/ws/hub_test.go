package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oro-os/backend/internal/logger"
	"github.com/oro-os/backend/internal/model"
	"github.com/oro-os/backend/internal/session"
)

func newTestHub(opts ...HubOption) *Hub {
	return NewHub(session.NewRegistry(), logger.Discard(), opts...)
}

// joinClient joins a socketless client and consumes its chat_history frame.
func joinClient(t *testing.T, hub *Hub, id string) (*Client, []model.ChatEvent) {
	t.Helper()
	c := NewClient(id, nil, 64)
	_, err := hub.Join(c)
	require.NoError(t, err)

	msg := receiveMessage(t, c)
	require.Equal(t, MessageTypeChatHistory, msg.Type)

	var history []model.ChatEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &history))
	return c, history
}

func receiveMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data, ok := <-c.SendChan():
		require.True(t, ok, "queue of %s closed", c.ID())
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a frame on %s", c.ID())
		return Message{}
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data, ok := <-c.SendChan():
		if ok {
			t.Fatalf("unexpected frame for %s: %s", c.ID(), data)
		}
	default:
	}
}

func TestHub_JoinSendsEmptyHistory(t *testing.T) {
	hub := newTestHub()

	c := NewClient("a", nil, 8)
	p, err := hub.Join(c)
	require.NoError(t, err)
	assert.Equal(t, "a", p.ID)
	assert.Equal(t, 1, hub.Count())

	msg := receiveMessage(t, c)
	assert.Equal(t, MessageTypeChatHistory, msg.Type)
	assert.JSONEq(t, `[]`, string(msg.Payload))
	assertNoMessage(t, c)
}

func TestHub_RelayChatExcludesSender(t *testing.T) {
	hub := newTestHub()
	a, _ := joinClient(t, hub, "a")
	b, _ := joinClient(t, hub, "b")
	c, _ := joinClient(t, hub, "c")

	ev, err := hub.RelayChat(a, json.RawMessage(`{"content":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev.Seq)
	assert.Equal(t, "a", ev.SenderID)

	for _, recipient := range []*Client{b, c} {
		msg := receiveMessage(t, recipient)
		assert.Equal(t, MessageTypeChatMessage, msg.Type)

		var got model.ChatEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, "a", got.SenderID)
		assert.Equal(t, uint64(1), got.Seq)
		assert.JSONEq(t, `{"content":"hi"}`, string(got.Payload))
	}
	assertNoMessage(t, a)
	assert.Equal(t, 1, hub.HistoryLen())
}

func TestHub_JoinerReceivesHistory(t *testing.T) {
	hub := newTestHub()
	a, _ := joinClient(t, hub, "a")

	for _, text := range []string{"one", "two", "three"} {
		payload, _ := json.Marshal(map[string]string{"content": text})
		_, err := hub.RelayChat(a, payload)
		require.NoError(t, err)
	}

	_, history := joinClient(t, hub, "b")
	require.Len(t, history, 3)
	for i, ev := range history {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.Equal(t, "a", ev.SenderID)
	}
}

func TestHub_RelayDesignIsVerbatimAndNotStored(t *testing.T) {
	hub := newTestHub()
	a, _ := joinClient(t, hub, "a")
	b, _ := joinClient(t, hub, "b")

	payload := json.RawMessage(`{"op":"move","id":7}`)
	n, err := hub.RelayDesign(b, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msg := receiveMessage(t, a)
	assert.Equal(t, MessageTypeDesignUpdate, msg.Type)
	assert.JSONEq(t, string(payload), string(msg.Payload))
	assertNoMessage(t, b)

	assert.Equal(t, 0, hub.HistoryLen())
	_, history := joinClient(t, hub, "c")
	assert.Empty(t, history)
}

func TestHub_LeaveIsIdempotent(t *testing.T) {
	hub := newTestHub()
	a, _ := joinClient(t, hub, "a")

	assert.True(t, hub.Leave("a"))
	assert.False(t, hub.Leave("a"))
	assert.False(t, hub.Leave("unknown"))

	assert.Equal(t, 0, hub.Count())
	assert.Empty(t, hub.Participants())
	assert.True(t, a.IsClosed())
}

func TestHub_RelayAfterLeaveSkipsDepartedClient(t *testing.T) {
	hub := newTestHub()
	a, _ := joinClient(t, hub, "a")
	b, _ := joinClient(t, hub, "b")
	c, _ := joinClient(t, hub, "c")

	hub.Leave(a.ID())

	_, err := hub.RelayChat(b, json.RawMessage(`"after"`))
	require.NoError(t, err)
	n, err := hub.RelayDesign(b, json.RawMessage(`{"op":"add"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, MessageTypeChatMessage, receiveMessage(t, c).Type)
	assert.Equal(t, MessageTypeDesignUpdate, receiveMessage(t, c).Type)

	// a's queue was closed on leave and nothing else was queued.
	_, ok := <-a.SendChan()
	assert.False(t, ok)
}

func TestHub_DuplicateIDRejected(t *testing.T) {
	hub := newTestHub()
	first, _ := joinClient(t, hub, "a")

	dup := NewClient("a", nil, 8)
	_, err := hub.Join(dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicateID))
	assert.Equal(t, 1, hub.Count())
	assertNoMessage(t, dup)

	// The original connection is still routable.
	second, _ := joinClient(t, hub, "b")
	_, err = hub.RelayChat(second, json.RawMessage(`1`))
	require.NoError(t, err)
	assert.Equal(t, MessageTypeChatMessage, receiveMessage(t, first).Type)
}

func TestHub_RelayFromNonMemberRejected(t *testing.T) {
	hub := newTestHub()
	joinClient(t, hub, "a")

	stranger := NewClient("stranger", nil, 8)
	_, err := hub.RelayChat(stranger, json.RawMessage(`1`))
	assert.True(t, errors.Is(err, model.ErrParticipantNotFound))
	_, err = hub.RelayDesign(stranger, json.RawMessage(`1`))
	assert.True(t, errors.Is(err, model.ErrParticipantNotFound))
	assert.Equal(t, 0, hub.HistoryLen())
}

func TestHub_SlowRecipientIsDroppedWithoutAffectingOthers(t *testing.T) {
	hub := newTestHub()
	a, _ := joinClient(t, hub, "a")
	b, _ := joinClient(t, hub, "b")

	// The history frame fills a one-slot queue that nobody drains.
	slow := NewClient("slow", nil, 1)
	_, err := hub.Join(slow)
	require.NoError(t, err)
	require.Equal(t, 3, hub.Count())

	_, err = hub.RelayChat(a, json.RawMessage(`"one"`))
	require.NoError(t, err)
	_, err = hub.RelayChat(a, json.RawMessage(`"two"`))
	require.NoError(t, err)

	assert.Equal(t, MessageTypeChatMessage, receiveMessage(t, b).Type)
	assert.Equal(t, MessageTypeChatMessage, receiveMessage(t, b).Type)
	assert.True(t, slow.IsClosed())
	assert.Equal(t, 2, hub.Count())
	assert.False(t, hub.Leave("slow"))
}

func TestHub_CloseDisconnectsEveryone(t *testing.T) {
	hub := newTestHub()
	a, _ := joinClient(t, hub, "a")
	b, _ := joinClient(t, hub, "b")

	hub.Close()

	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Equal(t, 0, hub.Count())

	_, err := hub.Join(NewClient("c", nil, 8))
	assert.True(t, errors.Is(err, model.ErrHubClosed))
	_, err = hub.RelayChat(a, json.RawMessage(`1`))
	assert.True(t, errors.Is(err, model.ErrHubClosed))
}

type fakeRecorder struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
	chats  []uint64
	fail   bool
}

func (f *fakeRecorder) RecordJoin(_ context.Context, p model.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, p.ID)
	if f.fail {
		return errors.New("audit unavailable")
	}
	return nil
}

func (f *fakeRecorder) RecordLeave(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, id)
	return nil
}

func (f *fakeRecorder) RecordChat(_ context.Context, ev model.ChatEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, ev.Seq)
	return nil
}

func TestHub_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	hub := newTestHub(WithRecorder(rec))

	a, _ := joinClient(t, hub, "a")
	joinClient(t, hub, "b")
	_, err := hub.RelayChat(a, json.RawMessage(`"x"`))
	require.NoError(t, err)
	hub.Leave("a")
	hub.Leave("a")
	hub.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, rec.joins)
	assert.Equal(t, []string{"a", "b"}, rec.leaves)
	assert.Equal(t, []uint64{1}, rec.chats)
}

func TestHub_RecorderFailureDoesNotRejectJoin(t *testing.T) {
	hub := newTestHub(WithRecorder(&fakeRecorder{fail: true}))
	joinClient(t, hub, "a")
	assert.Equal(t, 1, hub.Count())
}

// blockingRecorder holds every call until release is closed.
type blockingRecorder struct {
	fakeRecorder
	release chan struct{}
}

func (b *blockingRecorder) RecordJoin(ctx context.Context, p model.Participant) error {
	<-b.release
	return b.fakeRecorder.RecordJoin(ctx, p)
}

func (b *blockingRecorder) RecordChat(ctx context.Context, ev model.ChatEvent) error {
	<-b.release
	return b.fakeRecorder.RecordChat(ctx, ev)
}

func TestHub_SlowRecorderDoesNotStallRelays(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{})}
	hub := newTestHub(WithRecorder(rec))

	a := NewClient("a", nil, 8)
	b := NewClient("b", nil, 8)
	done := make(chan error, 1)
	go func() {
		if _, err := hub.Join(a); err != nil {
			done <- err
			return
		}
		if _, err := hub.Join(b); err != nil {
			done <- err
			return
		}
		for i := 0; i < 3; i++ {
			if _, err := hub.RelayChat(a, json.RawMessage(`"x"`)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("hub waited on the recorder")
	}
	assert.Equal(t, MessageTypeChatHistory, receiveMessage(t, b).Type)
	for i := 0; i < 3; i++ {
		assert.Equal(t, MessageTypeChatMessage, receiveMessage(t, b).Type)
	}

	close(rec.release)
	hub.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, rec.joins)
	assert.Equal(t, []uint64{1, 2, 3}, rec.chats)
	assert.ElementsMatch(t, []string{"a", "b"}, rec.leaves)
}

func TestHub_RecordsAfterCloseAreIgnored(t *testing.T) {
	rec := &fakeRecorder{}
	hub := newTestHub(WithRecorder(rec))
	joinClient(t, hub, "a")

	hub.Close()
	hub.Close()
	assert.False(t, hub.Leave("a"))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"a"}, rec.joins)
	assert.Equal(t, []string{"a"}, rec.leaves)
}
