package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/auth"
	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/process"
	"github.com/gosuda/sgi/internal/store/postgres"
)

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Register(ctx context.Context, tenantSlug, email, password, name string) (*domain.User, *domain.TenantContext, error)
	Login(ctx context.Context, email, password, tenantSlug string) (*auth.SignIn, error)
	SelectTenant(ctx context.Context, userID uuid.UUID, tenantSlug string) (*auth.SignIn, error)
	RefreshToken(ctx context.Context, refreshToken string) (*auth.Tokens, error)
	Logout(ctx context.Context, userID uuid.UUID)
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// TenantDirectory abstracts organization and membership operations.
// *tenant.Directory satisfies this interface.
type TenantDirectory interface {
	ListContexts(ctx context.Context, userID uuid.UUID) ([]*domain.TenantContext, error)
	ResolveTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	CreateOrganization(ctx context.Context, userID uuid.UUID, name, slug string) (*domain.TenantContext, error)
	ListMembers(ctx context.Context, tc domain.TenantContext) ([]*domain.Member, error)
	AddMember(ctx context.Context, tc domain.TenantContext, email string, role domain.Role) (*domain.Member, error)
	ChangeRole(ctx context.Context, tc domain.TenantContext, userID uuid.UUID, role domain.Role) error
	RemoveMember(ctx context.Context, tc domain.TenantContext, userID uuid.UUID) ([]uuid.UUID, error)
}

// ProcessService abstracts process, timeline and statistics operations.
// *process.Service satisfies this interface.
type ProcessService interface {
	Create(ctx context.Context, tc domain.TenantContext, in process.CreateInput) (*domain.Process, error)
	Get(ctx context.Context, tc domain.TenantContext, id uuid.UUID) (*domain.Process, error)
	List(ctx context.Context, tc domain.TenantContext) ([]*domain.Process, error)
	UpdateStatus(ctx context.Context, tc domain.TenantContext, id uuid.UUID, to domain.ProcessStatus) (*domain.Process, error)
	UpdateFields(ctx context.Context, tc domain.TenantContext, id uuid.UUID, patch process.Patch) (*domain.Process, error)
	Delete(ctx context.Context, tc domain.TenantContext, id uuid.UUID) error
	AppendEvent(ctx context.Context, tc domain.TenantContext, processID uuid.UUID, t domain.EventType, message string) (*domain.Event, error)
	ListEvents(ctx context.Context, tc domain.TenantContext, processID uuid.UUID) ([]*domain.Event, error)
	Stats(ctx context.Context, tc domain.TenantContext) (domain.Stats, error)
}

// SchemaChecker reports missing database relations.
// *postgres.Store satisfies this interface.
type SchemaChecker interface {
	SchemaStatus(ctx context.Context) (*postgres.SchemaStatus, error)
}
