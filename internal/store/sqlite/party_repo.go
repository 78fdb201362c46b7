package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"breederhub/internal/domain"
)

type PartyRepo struct {
	db *sql.DB
}

func NewPartyRepo(db *sql.DB) *PartyRepo {
	return &PartyRepo{db: db}
}

var _ domain.PartyRepository = (*PartyRepo)(nil)

func (r *PartyRepo) Create(ctx context.Context, p *domain.Party) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO parties (tenant_id, kind, name, email, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.TenantID, p.Kind, p.Name, p.Email, now)
	if err != nil {
		return fmt.Errorf("insert party: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	return nil
}

func (r *PartyRepo) GetByID(ctx context.Context, id int64) (*domain.Party, error) {
	p := &domain.Party{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, kind, name, email, created_at
		FROM parties
		WHERE id = ?
	`, id).Scan(&p.ID, &p.TenantID, &p.Kind, &p.Name, &p.Email, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get party: %w", err)
	}
	return p, nil
}

func (r *PartyRepo) OrgPartyID(ctx context.Context, tenantID int64) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id
		FROM parties
		WHERE tenant_id = ? AND kind = ?
	`, tenantID, domain.PartyOrganization).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("org party id: %w", err)
	}
	return id, nil
}
