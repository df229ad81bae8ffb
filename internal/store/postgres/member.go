package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/sgi/internal/domain"
)

type MembershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) *MembershipRepo {
	return &MembershipRepo{pool: pool}
}

func (r *MembershipRepo) Create(ctx context.Context, m *domain.Membership) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO org_members (org_id, user_id, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.TenantID, m.UserID, m.Role, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return classify("membershipRepo.Create", err)
	}

	return nil
}

func (r *MembershipRepo) Get(ctx context.Context, tenantID, userID uuid.UUID) (*domain.Membership, error) {
	var (
		m    domain.Membership
		role string
	)

	err := r.pool.QueryRow(ctx,
		`SELECT org_id, user_id, role, created_at, updated_at
		 FROM org_members WHERE org_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&m.TenantID, &m.UserID, &role, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, classify("membershipRepo.Get", err)
	}
	if m.Role, err = domain.ParseRole(role); err != nil {
		return nil, fmt.Errorf("membershipRepo.Get: %w", err)
	}

	return &m, nil
}

func (r *MembershipRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.org_id, m.user_id, m.role, m.created_at, m.updated_at, u.email, u.name
		 FROM org_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.org_id = $1
		 ORDER BY u.name, u.email`,
		tenantID,
	)
	if err != nil {
		return nil, classify("membershipRepo.ListByTenant", err)
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		var (
			m    domain.Member
			role string
		)
		if err := rows.Scan(&m.TenantID, &m.UserID, &role, &m.CreatedAt, &m.UpdatedAt, &m.Email, &m.Name); err != nil {
			return nil, classify("membershipRepo.ListByTenant: scan", err)
		}
		if m.Role, err = domain.ParseRole(role); err != nil {
			return nil, fmt.Errorf("membershipRepo.ListByTenant: %w", err)
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("membershipRepo.ListByTenant: rows", err)
	}

	return members, nil
}

func (r *MembershipRepo) UpdateRole(ctx context.Context, tenantID, userID uuid.UUID, role domain.Role) error {
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if role != domain.RoleOwner {
			if err := keepOwner(ctx, tx, tenantID, userID); err != nil {
				return err
			}
		}

		tag, err := tx.Exec(ctx,
			`UPDATE org_members SET role = $1, updated_at = now() WHERE org_id = $2 AND user_id = $3`,
			role, tenantID, userID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return classify("membershipRepo.UpdateRole", err)
	}

	return nil
}

// keepOwner locks the tenant's owner rows together with userID's row, in
// user_id order, and fails with ErrLastOwner when userID is the only owner.
// Concurrent demotions of different owners serialize on these locks.
func keepOwner(ctx context.Context, tx pgx.Tx, tenantID, userID uuid.UUID) error {
	rows, err := tx.Query(ctx,
		`SELECT user_id, role FROM org_members
		 WHERE org_id = $1 AND (role = 'owner' OR user_id = $2)
		 ORDER BY user_id
		 FOR UPDATE`,
		tenantID, userID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	targetOwner, others := false, 0
	for rows.Next() {
		var (
			id   uuid.UUID
			role string
		)
		if err := rows.Scan(&id, &role); err != nil {
			return err
		}
		switch {
		case id == userID:
			targetOwner = domain.Role(role) == domain.RoleOwner
		case domain.Role(role) == domain.RoleOwner:
			others++
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if targetOwner && others == 0 {
		return domain.ErrLastOwner
	}
	return nil
}

// Delete removes the membership, clears the user as assignee on the tenant's
// processes and appends the event built by release for each of them, all in
// one transaction.
func (r *MembershipRepo) Delete(ctx context.Context, tenantID, userID uuid.UUID, release domain.ReleaseFunc) ([]uuid.UUID, error) {
	var released []uuid.UUID

	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := keepOwner(ctx, tx, tenantID, userID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM org_members WHERE org_id = $1 AND user_id = $2`,
			tenantID, userID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}

		rows, err := tx.Query(ctx,
			`UPDATE processes SET assignee = NULL, updated_at = now(), version = version + 1
			 WHERE org_id = $1 AND assignee = $2
			 RETURNING `+processColumns,
			tenantID, userID,
		)
		if err != nil {
			return err
		}
		processes, err := scanProcesses(rows)
		rows.Close()
		if err != nil {
			return err
		}

		for _, p := range processes {
			released = append(released, p.ID)
			if release == nil {
				continue
			}
			if ev := release(p); ev != nil {
				if err := insertEvent(ctx, tx, ev); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify("membershipRepo.Delete", err)
	}

	return released, nil
}

func (r *MembershipRepo) Contexts(ctx context.Context, userID uuid.UUID) ([]*domain.TenantContext, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, org_id, org_slug, org_name, role
		 FROM v_user_context WHERE user_id = $1
		 ORDER BY org_name`,
		userID,
	)
	if err != nil {
		return nil, classify("membershipRepo.Contexts", err)
	}
	defer rows.Close()

	var out []*domain.TenantContext
	for rows.Next() {
		tc, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("membershipRepo.Contexts: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("membershipRepo.Contexts: rows", err)
	}

	return out, nil
}

func (r *MembershipRepo) Context(ctx context.Context, userID, tenantID uuid.UUID) (*domain.TenantContext, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, org_id, org_slug, org_name, role
		 FROM v_user_context WHERE user_id = $1 AND org_id = $2`,
		userID, tenantID,
	)
	tc, err := scanContext(row)
	if err != nil {
		return nil, fmt.Errorf("membershipRepo.Context: %w", err)
	}

	return tc, nil
}

// scanContext reads a v_user_context row. Role spellings stored by older
// clients are normalized here.
func scanContext(row pgx.Row) (*domain.TenantContext, error) {
	var (
		tc   domain.TenantContext
		role string
	)
	if err := row.Scan(&tc.UserID, &tc.TenantID, &tc.TenantSlug, &tc.TenantName, &role); err != nil {
		return nil, classify("scan", err)
	}
	r, err := domain.ParseRole(role)
	if err != nil {
		return nil, err
	}
	tc.Role = r
	return &tc, nil
}
