// Package repository persists the connection audit log.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oro-os/backend/internal/model"
)

// DefaultListLimit is used when ListRecent is called with a non-positive limit.
const DefaultListLimit = 50

// MaxListLimit caps the number of rows ListRecent returns.
const MaxListLimit = 500

// ParticipantRepository writes one row per connection to participant_log.
// The log is write-mostly and never feeds back into the live registry.
type ParticipantRepository struct {
	db *sql.DB
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(db *sql.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// RecordJoin inserts a row for a newly connected participant.
func (r *ParticipantRepository) RecordJoin(ctx context.Context, p model.Participant) error {
	query := `
		INSERT INTO participant_log (id, joined_at, left_at, messages_sent)
		VALUES (?, ?, NULL, 0)
		ON CONFLICT(id) DO UPDATE SET joined_at = excluded.joined_at, left_at = NULL, messages_sent = 0
	`

	if _, err := r.db.ExecContext(ctx, query, p.ID, p.JoinedAt.UTC()); err != nil {
		return fmt.Errorf("failed to record join: %w", err)
	}
	return nil
}

// RecordLeave stamps the disconnect time of a participant.
func (r *ParticipantRepository) RecordLeave(ctx context.Context, id string, leftAt time.Time) error {
	query := `UPDATE participant_log SET left_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, leftAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record leave: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrParticipantNotFound
	}
	return nil
}

// RecordChat counts one chat message against its sender.
func (r *ParticipantRepository) RecordChat(ctx context.Context, ev model.ChatEvent) error {
	query := `UPDATE participant_log SET messages_sent = messages_sent + 1 WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, ev.SenderID)
	if err != nil {
		return fmt.Errorf("failed to record chat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrParticipantNotFound
	}
	return nil
}

// GetByID retrieves one audit row.
func (r *ParticipantRepository) GetByID(ctx context.Context, id string) (*model.ParticipantRecord, error) {
	query := `
		SELECT id, joined_at, left_at, messages_sent
		FROM participant_log
		WHERE id = ?
	`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant record: %w", err)
	}
	return rec, nil
}

// ListRecent returns the most recently joined participants, newest first.
func (r *ParticipantRepository) ListRecent(ctx context.Context, limit int) ([]*model.ParticipantRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `
		SELECT id, joined_at, left_at, messages_sent
		FROM participant_log
		ORDER BY joined_at DESC, id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list participant records: %w", err)
	}
	defer rows.Close()

	records := make([]*model.ParticipantRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant records: %w", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*model.ParticipantRecord, error) {
	rec := &model.ParticipantRecord{}
	var leftAt sql.NullTime

	if err := s.Scan(&rec.ID, &rec.JoinedAt, &leftAt, &rec.MessagesSent); err != nil {
		return nil, err
	}

	if leftAt.Valid {
		t := leftAt.Time
		rec.LeftAt = &t
	}
	return rec, nil
}
