package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Membership struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is a membership joined with the user's profile, used for listings.
type Member struct {
	Membership
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ErrLastOwner is returned when a role change or removal would leave a tenant
// without an owner.
var ErrLastOwner = fmt.Errorf("%w: the last owner cannot be removed or demoted", ErrConflict)

// ReleaseFunc builds the event recorded for a process whose assignee is being
// cleared because the assignee's membership was removed.
type ReleaseFunc func(p *Process) *Event

type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	Get(ctx context.Context, tenantID, userID uuid.UUID) (*Membership, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Member, error)

	// UpdateRole and Delete check the tenant's owners inside their own write:
	// taking the owner role from the only owner returns ErrLastOwner.
	UpdateRole(ctx context.Context, tenantID, userID uuid.UUID, role Role) error

	// Delete removes the membership and, in the same transaction, clears the
	// assignee of every process of the tenant assigned to the user, appending
	// the event built by release for each of them. It returns the ids of the
	// released processes.
	Delete(ctx context.Context, tenantID, userID uuid.UUID, release ReleaseFunc) ([]uuid.UUID, error)

	// Contexts reads the user context view: one entry per tenant the user
	// belongs to, ordered by tenant name.
	Contexts(ctx context.Context, userID uuid.UUID) ([]*TenantContext, error)
	Context(ctx context.Context, userID, tenantID uuid.UUID) (*TenantContext, error)
}
