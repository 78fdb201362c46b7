package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"breederhub/internal/domain"
)

type PortalAccountRepo struct {
	db *sql.DB
}

func NewPortalAccountRepo(db *sql.DB) *PortalAccountRepo {
	return &PortalAccountRepo{db: db}
}

var _ domain.PortalAccountRepository = (*PortalAccountRepo)(nil)

func (r *PortalAccountRepo) Create(ctx context.Context, a *domain.PortalAccount) error {
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO portal_accounts (tenant_id, email, identity_key, created_at)
		VALUES (?, ?, ?, ?)
	`, a.TenantID, a.Email, a.IdentityKey, now); err != nil {
		return fmt.Errorf("insert portal account: %w", err)
	}
	a.CreatedAt = now
	return nil
}

func (r *PortalAccountRepo) IdentityKeyByEmail(ctx context.Context, tenantID int64, email string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx, `
		SELECT identity_key
		FROM portal_accounts
		WHERE tenant_id = ? AND email = ?
	`, tenantID, email).Scan(&key)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("identity key by email: %w", err)
	}
	return key, nil
}
