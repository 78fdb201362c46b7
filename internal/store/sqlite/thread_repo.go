package sqlite

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

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO threads (tenant_id, subject, is_archived, is_flagged, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, ?)
	`, t.TenantID, t.Subject, now, now)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now

	for _, pid := range participantPartyIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO thread_participants (thread_id, party_id, joined_at)
			VALUES (?, ?, ?)
		`, id, pid, now); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ThreadRepo) GetByID(ctx context.Context, id int64) (*domain.Thread, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+threadColumns+`
		FROM threads
		WHERE id = ?
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
		WHERE tenant_id = ?
	`
	args := []any{tenantID}
	if f.Archived != nil {
		query += ` AND is_archived = ?`
		args = append(args, *f.Archived)
	}
	if f.Flagged != nil {
		query += ` AND is_flagged = ?`
		args = append(args, *f.Flagged)
	}
	query += ` ORDER BY last_message_at DESC NULLS LAST, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
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
		UPDATE threads SET last_message_at = ?, updated_at = ? WHERE id = ?
	`, at.UTC(), time.Now().UTC(), threadID); err != nil {
		return fmt.Errorf("touch last message: %w", err)
	}
	return nil
}

func (r *ThreadRepo) SetArchived(ctx context.Context, threadID int64, archived bool) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE threads SET is_archived = ?, updated_at = ? WHERE id = ?
	`, archived, time.Now().UTC(), threadID); err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	return nil
}

func (r *ThreadRepo) SetFlagged(ctx context.Context, threadID int64, flagged bool) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE threads SET is_flagged = ?, updated_at = ? WHERE id = ?
	`, flagged, time.Now().UTC(), threadID); err != nil {
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
		SET first_inbound_at = ?, updated_at = ?
		WHERE id = ? AND first_inbound_at IS NULL
	`, at.UTC(), time.Now().UTC(), threadID)
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
		SET first_org_reply_at = ?,
		    response_time_seconds = ?,
		    business_hours_response_time = ?,
		    updated_at = ?
		WHERE id = ? AND first_org_reply_at IS NULL AND first_inbound_at IS NOT NULL
	`, at.UTC(), responseSeconds, businessSeconds, time.Now().UTC(), threadID)
	if err != nil {
		return false, fmt.Errorf("claim first org reply: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
