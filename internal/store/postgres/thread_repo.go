package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"breederhub/internal/domain"
)

type ThreadRepo struct {
	db *sql.DB
}

func NewThreadRepo(db *sql.DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

var _ domain.ThreadRepository = (*ThreadRepo)(nil)

const threadColumns = `id, tenant_id, subject, is_archived, is_flagged, last_message_at,
	first_inbound_at, first_org_reply_at, response_time_seconds, business_hours_response_time,
	created_at, updated_at`

func scanThread(row interface{ Scan(...any) error }) (*domain.Thread, error) {
	t := &domain.Thread{}
	err := row.Scan(
		&t.ID,
		&t.TenantID,
		&t.Subject,
		&t.IsArchived,
		&t.IsFlagged,
		&t.LastMessageAt,
		&t.FirstInboundAt,
		&t.FirstOrgReplyAt,
		&t.ResponseTimeSeconds,
		&t.BusinessHoursResponseTime,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *ThreadRepo) Create(ctx context.Context, t *domain.Thread, participantPartyIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO threads (tenant_id, subject, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, t.TenantID, t.Subject).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}

	for _, pid := range participantPartyIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO thread_participants (thread_id, party_id, joined_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT DO NOTHING
		`, t.ID, pid); err != nil {
			return fmt.Errorf("insert participant %d: %w", pid, err)
		}
	}

	return tx.Commit()
}

func (r *ThreadRepo) GetByID(ctx context.Context, id int64) (*domain.Thread, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+threadColumns+`
		FROM threads WHERE id = $1
	`, id)
	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return t, nil
}

func (r *ThreadRepo) ListForTenant(ctx context.Context, tenantID int64, f domain.ThreadFilter) ([]*domain.Thread, error) {
	query := `
		SELECT ` + threadColumns + `
		FROM threads
		WHERE tenant_id = $1
	`
	args := []any{tenantID}
	if f.Archived != nil {
		args = append(args, *f.Archived)
		query += fmt.Sprintf(` AND is_archived = $%d`, len(args))
	}
	if f.Flagged != nil {
		args = append(args, *f.Flagged)
		query += fmt.Sprintf(` AND is_flagged = $%d`, len(args))
	}
	query += ` ORDER BY last_message_at DESC NULLS LAST, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var res []*domain.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *ThreadRepo) TouchLastMessage(ctx context.Context, threadID int64, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE threads SET last_message_at = $1, updated_at = NOW() WHERE id = $2
	`, at.UTC(), threadID); err != nil {
		return fmt.Errorf("touch last message: %w", err)
	}
	return nil
}

func (r *ThreadRepo) SetArchived(ctx context.Context, threadID int64, archived bool) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE threads SET is_archived = $1, updated_at = NOW() WHERE id = $2
	`, archived, threadID); err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	return nil
}

func (r *ThreadRepo) SetFlagged(ctx context.Context, threadID int64, flagged bool) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE threads SET is_flagged = $1, updated_at = NOW() WHERE id = $2
	`, flagged, threadID); err != nil {
		return fmt.Errorf("set flagged: %w", err)
	}
	return nil
}

// ClaimFirstInbound records the first non-organization message timestamp.
// The WHERE clause carries the idempotency guard: under concurrent sends
// only one caller sees an affected row.
func (r *ThreadRepo) ClaimFirstInbound(ctx context.Context, threadID int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE threads
		SET first_inbound_at = $1, updated_at = NOW()
		WHERE id = $2 AND first_inbound_at IS NULL
	`, at.UTC(), threadID)
	if err != nil {
		return false, fmt.Errorf("claim first inbound: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ClaimFirstOrgReply writes all three response fields in one conditional
// update so the thread's first-response history is immutable once set.
func (r *ThreadRepo) ClaimFirstOrgReply(ctx context.Context, threadID int64, at time.Time, responseSeconds, businessSeconds int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE threads
		SET first_org_reply_at = $1,
		    response_time_seconds = $2,
		    business_hours_response_time = $3,
		    updated_at = NOW()
		WHERE id = $4 AND first_org_reply_at IS NULL AND first_inbound_at IS NOT NULL
	`, at.UTC(), responseSeconds, businessSeconds, threadID)
	if err != nil {
		return false, fmt.Errorf("claim first org reply: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
