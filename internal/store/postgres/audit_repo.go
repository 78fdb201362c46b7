package postgres

import (
	"context"
	"database/sql"
	"fmt"

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
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO audit_log (tenant_id, channel, party_id, thread_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`, e.TenantID, e.Channel, e.PartyID, e.ThreadID, e.Reason).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditLogRepo) ListForTenant(ctx context.Context, tenantID int64, limit int) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, tenant_id, channel, party_id, thread_id, reason, created_at
		FROM audit_log
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{tenantID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
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
