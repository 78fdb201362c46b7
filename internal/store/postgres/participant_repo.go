package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"breederhub/internal/domain"
)

type ParticipantRepo struct {
	db *sql.DB
}

func NewParticipantRepo(db *sql.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

var _ domain.ParticipantRepository = (*ParticipantRepo)(nil)

func (r *ParticipantRepo) ListForThread(ctx context.Context, threadID int64) ([]*domain.Party, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.tenant_id, p.kind, p.name, p.email, p.created_at
		FROM parties p
		JOIN thread_participants tp ON tp.party_id = p.id
		WHERE tp.thread_id = $1
		ORDER BY p.id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var parties []*domain.Party
	for rows.Next() {
		p := &domain.Party{}
		if err := rows.Scan(
			&p.ID,
			&p.TenantID,
			&p.Kind,
			&p.Name,
			&p.Email,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

func (r *ParticipantRepo) Get(ctx context.Context, threadID, partyID int64) (*domain.ThreadParticipant, error) {
	tp := &domain.ThreadParticipant{}
	err := r.db.QueryRowContext(ctx, `
		SELECT thread_id, party_id, last_read_at, joined_at
		FROM thread_participants
		WHERE thread_id = $1 AND party_id = $2
	`, threadID, partyID).Scan(&tp.ThreadID, &tp.PartyID, &tp.LastReadAt, &tp.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return tp, nil
}

func (r *ParticipantRepo) IsParticipant(ctx context.Context, threadID, partyID int64) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1
		FROM thread_participants
		WHERE thread_id = $1 AND party_id = $2
	`, threadID, partyID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is participant: %w", err)
	}
	return true, nil
}

func (r *ParticipantRepo) SetLastRead(ctx context.Context, threadID, partyID int64, at *time.Time) error {
	var stamp any
	if at != nil {
		stamp = at.UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE thread_participants
		SET last_read_at = $1
		WHERE thread_id = $2 AND party_id = $3
	`, stamp, threadID, partyID)
	if err != nil {
		return fmt.Errorf("set last read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UnreadCount counts messages the participant has not seen: anything from
// another sender (system messages included) created after the watermark.
// A nil watermark means the whole thread is unread.
func (r *ParticipantRepo) UnreadCount(ctx context.Context, threadID, partyID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN thread_participants tp ON tp.thread_id = m.thread_id AND tp.party_id = $1
		WHERE m.thread_id = $2
		  AND (m.sender_party_id IS NULL OR m.sender_party_id != tp.party_id)
		  AND (tp.last_read_at IS NULL OR m.created_at > tp.last_read_at)
	`, partyID, threadID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}
