package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oro-os/backend/internal/db"
	"github.com/oro-os/backend/internal/model"
	"github.com/oro-os/backend/internal/ws"
)

func newTestRepo(t *testing.T) *ParticipantRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CloseDB(testDB) })
	return NewParticipantRepository(testDB)
}

func TestParticipantRepository_Lifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordJoin(ctx, model.Participant{ID: "a", JoinedAt: joined}))

	rec, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, rec.JoinedAt.Equal(joined))
	assert.Nil(t, rec.LeftAt)
	assert.Zero(t, rec.MessagesSent)

	require.NoError(t, repo.RecordChat(ctx, model.ChatEvent{SenderID: "a", Seq: 1}))
	require.NoError(t, repo.RecordChat(ctx, model.ChatEvent{SenderID: "a", Seq: 2}))

	left := joined.Add(5 * time.Minute)
	require.NoError(t, repo.RecordLeave(ctx, "a", left))

	rec, err = repo.GetByID(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, rec.LeftAt)
	assert.True(t, rec.LeftAt.Equal(left))
	assert.Equal(t, 2, rec.MessagesSent)
}

func TestParticipantRepository_UnknownParticipant(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, model.ErrParticipantNotFound)
	assert.ErrorIs(t, repo.RecordLeave(ctx, "ghost", time.Now()), model.ErrParticipantNotFound)
	assert.ErrorIs(t, repo.RecordChat(ctx, model.ChatEvent{SenderID: "ghost"}), model.ErrParticipantNotFound)
}

func TestParticipantRepository_ListRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p := model.Participant{ID: fmt.Sprintf("p%d", i), JoinedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, repo.RecordJoin(ctx, p))
	}

	records, err := repo.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "p4", records[0].ID)
	assert.Equal(t, "p3", records[1].ID)
	assert.Equal(t, "p2", records[2].ID)

	records, err = repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestParticipantRepository_ListRecentEmpty(t *testing.T) {
	repo := newTestRepo(t)

	records, err := repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestInitDB_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.db")

	sqlDB, err := db.InitDB(path)
	require.NoError(t, err)
	defer db.CloseDB(sqlDB)

	repo := NewParticipantRepository(sqlDB)
	require.NoError(t, repo.RecordJoin(context.Background(), model.Participant{ID: "a", JoinedAt: time.Now()}))
}

// Every recorded join can be read back with the message count recorded for it.
func TestParticipantAuditProperty(t *testing.T) {
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	defer db.CloseDB(testDB)

	repo := NewParticipantRepository(testDB)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("audit row reflects join, chat count and leave", prop.ForAll(
		func(messages int, leave bool) bool {
			id := uuid.New().String()
			joined := time.Now().UTC().Truncate(time.Millisecond)

			if err := repo.RecordJoin(ctx, model.Participant{ID: id, JoinedAt: joined}); err != nil {
				t.Logf("join: %v", err)
				return false
			}
			for i := 0; i < messages; i++ {
				if err := repo.RecordChat(ctx, model.ChatEvent{SenderID: id, Seq: uint64(i + 1)}); err != nil {
					t.Logf("chat: %v", err)
					return false
				}
			}
			if leave {
				if err := repo.RecordLeave(ctx, id, joined.Add(time.Second)); err != nil {
					t.Logf("leave: %v", err)
					return false
				}
			}

			rec, err := repo.GetByID(ctx, id)
			if err != nil {
				t.Logf("get: %v", err)
				return false
			}
			return rec.ID == id &&
				rec.JoinedAt.Equal(joined) &&
				rec.MessagesSent == messages &&
				(rec.LeftAt != nil) == leave
		},
		gen.IntRange(0, 20),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

var _ ws.Recorder = (*ParticipantRepository)(nil)
