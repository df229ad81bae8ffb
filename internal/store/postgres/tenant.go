package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/sgi/internal/domain"
)

type TenantRepo struct {
	pool *pgxpool.Pool
}

func NewTenantRepo(pool *pgxpool.Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

// CreateWithOwner inserts the organization and its first owner membership in
// one transaction.
func (r *TenantRepo) CreateWithOwner(ctx context.Context, t *domain.Tenant, owner *domain.Membership) error {
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO organizations (id, name, slug, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			t.ID, t.Name, t.Slug, t.CreatedAt, t.UpdatedAt,
		); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO org_members (org_id, user_id, role, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			t.ID, owner.UserID, owner.Role, owner.CreatedAt, owner.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return classify("tenantRepo.CreateWithOwner", err)
	}

	return nil
}

func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	var t domain.Tenant

	err := r.pool.QueryRow(ctx,
		`SELECT id, name, slug, created_at, updated_at
		 FROM organizations WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, classify("tenantRepo.GetByID", err)
	}

	return &t, nil
}

func (r *TenantRepo) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	var t domain.Tenant

	err := r.pool.QueryRow(ctx,
		`SELECT id, name, slug, created_at, updated_at
		 FROM organizations WHERE slug = $1`,
		slug,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, classify("tenantRepo.GetBySlug", err)
	}

	return &t, nil
}
