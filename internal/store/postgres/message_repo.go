package postgres

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
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO messages (thread_id, sender_party_id, body, created_at,
			attachment_name, attachment_type, attachment_size, attachment_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		m.ThreadID,
		m.SenderPartyID,
		m.Body,
		m.CreatedAt.UTC(),
		m.AttachmentName,
		m.AttachmentType,
		m.AttachmentSize,
		m.AttachmentKey,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListForThread(ctx context.Context, threadID int64, limit int) ([]*domain.Message, error) {
	query := `
		SELECT id, thread_id, sender_party_id, body, created_at,
			attachment_name, attachment_type, attachment_size, attachment_key
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at ASC, id ASC
	`
	args := []any{threadID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
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
