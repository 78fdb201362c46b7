package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"breederhub/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	query := `
		INSERT INTO messages (thread_id, sender_party_id, body, created_at,
			attachment_name, attachment_type, attachment_size, attachment_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query,
		m.ThreadID,
		m.SenderPartyID,
		m.Body,
		m.CreatedAt.UTC(),
		m.AttachmentName,
		m.AttachmentType,
		m.AttachmentSize,
		m.AttachmentKey,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MessageRepo) ListForThread(ctx context.Context, threadID int64, limit int) ([]*domain.Message, error) {
	query := `
		SELECT id, thread_id, sender_party_id, body, created_at,
			attachment_name, attachment_type, attachment_size, attachment_key
		FROM messages
		WHERE thread_id = ?
		ORDER BY created_at ASC, id ASC
	`
	args := []any{threadID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(
			&m.ID,
			&m.ThreadID,
			&m.SenderPartyID,
			&m.Body,
			&m.CreatedAt,
			&m.AttachmentName,
			&m.AttachmentType,
			&m.AttachmentSize,
			&m.AttachmentKey,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
