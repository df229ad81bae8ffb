package tenant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/sgi/internal/authz"
	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/session"
)

func (d *Directory) ListMembers(ctx context.Context, tc domain.TenantContext) ([]*domain.Member, error) {
	if err := gate(tc, authz.OpListMembers); err != nil {
		return nil, fmt.Errorf("tenant.ListMembers: %w", err)
	}

	ctx, cancel := bounded(ctx, d.queryTimeout)
	defer cancel()

	members, err := d.members.ListByTenant(ctx, tc.TenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant.ListMembers: %w", classify(ctx, err))
	}
	return members, nil
}

// AddMember grants role in the caller's tenant to the registered user with
// the given email. Only owners may grant the owner role.
func (d *Directory) AddMember(ctx context.Context, tc domain.TenantContext, email string, role domain.Role) (*domain.Member, error) {
	if err := gate(tc, authz.OpManageMembers); err != nil {
		return nil, fmt.Errorf("tenant.AddMember: %w", err)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("tenant.AddMember: %w: invalid role %q", domain.ErrValidation, role)
	}
	if role == domain.RoleOwner && tc.Role != domain.RoleOwner {
		return nil, fmt.Errorf("tenant.AddMember: only an owner may grant owner: %w", domain.ErrUnauthorized)
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("tenant.AddMember: %w: email is required", domain.ErrValidation)
	}

	ctx, cancel := bounded(ctx, d.queryTimeout)
	defer cancel()

	u, err := d.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("tenant.AddMember: user: %w", classify(ctx, err))
	}

	now := time.Now()
	m := domain.Membership{
		TenantID:  tc.TenantID,
		UserID:    u.ID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.members.Create(ctx, &m); err != nil {
		return nil, fmt.Errorf("tenant.AddMember: %w", classify(ctx, err))
	}

	log.Info().
		Str("tenant_id", tc.TenantID.String()).
		Str("user_id", u.ID.String()).
		Str("role", string(role)).
		Str("actor_id", tc.UserID.String()).
		Msg("member added")

	return &domain.Member{Membership: m, Email: u.Email, Name: u.Name}, nil
}

// ChangeRole updates a member's role. Owner memberships are only touched by
// owners and the last owner cannot be demoted.
func (d *Directory) ChangeRole(ctx context.Context, tc domain.TenantContext, userID uuid.UUID, role domain.Role) error {
	if err := gate(tc, authz.OpManageMembers); err != nil {
		return fmt.Errorf("tenant.ChangeRole: %w", err)
	}
	if !role.Valid() {
		return fmt.Errorf("tenant.ChangeRole: %w: invalid role %q", domain.ErrValidation, role)
	}

	ctx, cancel := bounded(ctx, d.queryTimeout)
	defer cancel()

	target, err := d.members.Get(ctx, tc.TenantID, userID)
	if err != nil {
		return fmt.Errorf("tenant.ChangeRole: %w", classify(ctx, err))
	}
	if target.Role == role {
		return nil
	}
	if err := checkOwnerChange(tc, target); err != nil {
		return fmt.Errorf("tenant.ChangeRole: %w", err)
	}
	if role == domain.RoleOwner && tc.Role != domain.RoleOwner {
		return fmt.Errorf("tenant.ChangeRole: only an owner may grant owner: %w", domain.ErrUnauthorized)
	}

	if err := d.members.UpdateRole(ctx, tc.TenantID, userID, role); err != nil {
		return fmt.Errorf("tenant.ChangeRole: %w", classify(ctx, err))
	}

	d.notify(ctx, session.Change{
		Kind:     session.KindRoleChanged,
		UserID:   userID,
		TenantID: tc.TenantID,
		Role:     role,
	})
	log.Info().
		Str("tenant_id", tc.TenantID.String()).
		Str("user_id", userID.String()).
		Str("from", string(target.Role)).
		Str("to", string(role)).
		Str("actor_id", tc.UserID.String()).
		Msg("member role changed")

	return nil
}

// RemoveMember revokes a membership. Processes assigned to the removed user
// lose their assignee, each with an atribuicao event, in the same write.
func (d *Directory) RemoveMember(ctx context.Context, tc domain.TenantContext, userID uuid.UUID) ([]uuid.UUID, error) {
	if err := gate(tc, authz.OpManageMembers); err != nil {
		return nil, fmt.Errorf("tenant.RemoveMember: %w", err)
	}

	ctx, cancel := bounded(ctx, d.queryTimeout)
	defer cancel()

	target, err := d.members.Get(ctx, tc.TenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("tenant.RemoveMember: %w", classify(ctx, err))
	}
	if err := checkOwnerChange(tc, target); err != nil {
		return nil, fmt.Errorf("tenant.RemoveMember: %w", err)
	}

	released, err := d.members.Delete(ctx, tc.TenantID, userID, releaseFunc(tc.UserID))
	if err != nil {
		return nil, fmt.Errorf("tenant.RemoveMember: %w", classify(ctx, err))
	}

	d.notify(ctx, session.Change{
		Kind:     session.KindMembershipRemoved,
		UserID:   userID,
		TenantID: tc.TenantID,
	})
	log.Info().
		Str("tenant_id", tc.TenantID.String()).
		Str("user_id", userID.String()).
		Int("released_processes", len(released)).
		Str("actor_id", tc.UserID.String()).
		Msg("member removed")

	return released, nil
}

// checkOwnerChange guards any change that takes the owner role away from
// target. The last-owner rule is enforced by the repository write itself.
func checkOwnerChange(tc domain.TenantContext, target *domain.Membership) error {
	if target.Role == domain.RoleOwner && tc.Role != domain.RoleOwner {
		return fmt.Errorf("only an owner may change another owner: %w", domain.ErrUnauthorized)
	}
	return nil
}
