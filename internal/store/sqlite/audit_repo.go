package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"breederhub/internal/domain"
)

type AuditLogRepo struct {
	db *sql.DB
}

func NewAuditLogRepo(db *sql.DB) *AuditLogRepo {
	return &AuditLogRepo{db: db}
}

var _ domain.AuditLogRepository = (*AuditLogRepo)(nil)

func (r *AuditLogRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (tenant_id, channel, party_id, thread_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.TenantID, e.Channel, e.PartyID, e.ThreadID, e.Reason, now)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	return nil
}

func (r *AuditLogRepo) ListForTenant(ctx context.Context, tenantID int64, limit int) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, tenant_id, channel, party_id, thread_id, reason, created_at
		FROM audit_log
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC
	`
	args := []any{tenantID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var res []*domain.AuditEntry
	for rows.Next() {
		e := &domain.AuditEntry{}
		if err := rows.Scan(
			&e.ID,
			&e.TenantID,
			&e.Channel,
			&e.PartyID,
			&e.ThreadID,
			&e.Reason,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
