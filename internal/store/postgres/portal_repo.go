package postgres

import (
	"context"
	"database/sql"
	"fmt"

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
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO portal_accounts (tenant_id, email, identity_key, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`, a.TenantID, a.Email, a.IdentityKey).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert portal account: %w", err)
	}
	return nil
}

func (r *PortalAccountRepo) IdentityKeyByEmail(ctx context.Context, tenantID int64, email string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx, `
		SELECT identity_key
		FROM portal_accounts
		WHERE tenant_id = $1 AND email = $2
	`, tenantID, email).Scan(&key)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("identity key by email: %w", err)
	}
	return key, nil
}
