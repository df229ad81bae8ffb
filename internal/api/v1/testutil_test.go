package v1_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/auth"
	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/process"
	"github.com/gosuda/sgi/internal/server/middleware"
	"github.com/gosuda/sgi/internal/store/postgres"
)

// ---------------------------------------------------------------------------
// Context helpers: inject identity for the *Ctx request helpers
// ---------------------------------------------------------------------------

func userCtx(userID uuid.UUID) context.Context {
	return middleware.WithIdentity(context.Background(), userID, uuid.Nil)
}

func roleCtx(tenantID uuid.UUID, role domain.Role) (context.Context, domain.TenantContext) {
	tc := domain.TenantContext{
		UserID:     uuid.New(),
		TenantID:   tenantID,
		TenantSlug: "acme",
		TenantName: "Acme",
		Role:       role,
	}
	return middleware.WithTenantContext(context.Background(), &tc), tc
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	registerFunc     func(ctx context.Context, tenantSlug, email, password, name string) (*domain.User, *domain.TenantContext, error)
	loginFunc        func(ctx context.Context, email, password, tenantSlug string) (*auth.SignIn, error)
	selectTenantFunc func(ctx context.Context, userID uuid.UUID, tenantSlug string) (*auth.SignIn, error)
	refreshTokenFunc func(ctx context.Context, refreshToken string) (*auth.Tokens, error)
	logoutFunc       func(ctx context.Context, userID uuid.UUID)
	getUserFunc      func(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, tenantSlug, email, password, name string) (*domain.User, *domain.TenantContext, error) {
	return m.registerFunc(ctx, tenantSlug, email, password, name)
}

func (m *mockAuthService) Login(ctx context.Context, email, password, tenantSlug string) (*auth.SignIn, error) {
	return m.loginFunc(ctx, email, password, tenantSlug)
}

func (m *mockAuthService) SelectTenant(ctx context.Context, userID uuid.UUID, tenantSlug string) (*auth.SignIn, error) {
	return m.selectTenantFunc(ctx, userID, tenantSlug)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*auth.Tokens, error) {
	return m.refreshTokenFunc(ctx, refreshToken)
}

func (m *mockAuthService) Logout(ctx context.Context, userID uuid.UUID) {
	m.logoutFunc(ctx, userID)
}

func (m *mockAuthService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return m.getUserFunc(ctx, userID)
}

// ---------------------------------------------------------------------------
// Mock TenantDirectory
// ---------------------------------------------------------------------------

type mockDirectory struct {
	listContextsFunc       func(ctx context.Context, userID uuid.UUID) ([]*domain.TenantContext, error)
	resolveBySlugFunc      func(ctx context.Context, slug string) (*domain.Tenant, error)
	createOrganizationFunc func(ctx context.Context, userID uuid.UUID, name, slug string) (*domain.TenantContext, error)
	listMembersFunc        func(ctx context.Context, tc domain.TenantContext) ([]*domain.Member, error)
	addMemberFunc          func(ctx context.Context, tc domain.TenantContext, email string, role domain.Role) (*domain.Member, error)
	changeRoleFunc         func(ctx context.Context, tc domain.TenantContext, userID uuid.UUID, role domain.Role) error
	removeMemberFunc       func(ctx context.Context, tc domain.TenantContext, userID uuid.UUID) ([]uuid.UUID, error)
}

func (m *mockDirectory) ListContexts(ctx context.Context, userID uuid.UUID) ([]*domain.TenantContext, error) {
	return m.listContextsFunc(ctx, userID)
}

func (m *mockDirectory) ResolveTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return m.resolveBySlugFunc(ctx, slug)
}

func (m *mockDirectory) CreateOrganization(ctx context.Context, userID uuid.UUID, name, slug string) (*domain.TenantContext, error) {
	return m.createOrganizationFunc(ctx, userID, name, slug)
}

func (m *mockDirectory) ListMembers(ctx context.Context, tc domain.TenantContext) ([]*domain.Member, error) {
	return m.listMembersFunc(ctx, tc)
}

func (m *mockDirectory) AddMember(ctx context.Context, tc domain.TenantContext, email string, role domain.Role) (*domain.Member, error) {
	return m.addMemberFunc(ctx, tc, email, role)
}

func (m *mockDirectory) ChangeRole(ctx context.Context, tc domain.TenantContext, userID uuid.UUID, role domain.Role) error {
	return m.changeRoleFunc(ctx, tc, userID, role)
}

func (m *mockDirectory) RemoveMember(ctx context.Context, tc domain.TenantContext, userID uuid.UUID) ([]uuid.UUID, error) {
	return m.removeMemberFunc(ctx, tc, userID)
}

// ---------------------------------------------------------------------------
// Mock ProcessService
// ---------------------------------------------------------------------------

type mockProcessService struct {
	createFunc       func(ctx context.Context, tc domain.TenantContext, in process.CreateInput) (*domain.Process, error)
	getFunc          func(ctx context.Context, tc domain.TenantContext, id uuid.UUID) (*domain.Process, error)
	listFunc         func(ctx context.Context, tc domain.TenantContext) ([]*domain.Process, error)
	updateStatusFunc func(ctx context.Context, tc domain.TenantContext, id uuid.UUID, to domain.ProcessStatus) (*domain.Process, error)
	updateFieldsFunc func(ctx context.Context, tc domain.TenantContext, id uuid.UUID, patch process.Patch) (*domain.Process, error)
	deleteFunc       func(ctx context.Context, tc domain.TenantContext, id uuid.UUID) error
	appendEventFunc  func(ctx context.Context, tc domain.TenantContext, processID uuid.UUID, t domain.EventType, message string) (*domain.Event, error)
	listEventsFunc   func(ctx context.Context, tc domain.TenantContext, processID uuid.UUID) ([]*domain.Event, error)
	statsFunc        func(ctx context.Context, tc domain.TenantContext) (domain.Stats, error)
}

func (m *mockProcessService) Create(ctx context.Context, tc domain.TenantContext, in process.CreateInput) (*domain.Process, error) {
	return m.createFunc(ctx, tc, in)
}

func (m *mockProcessService) Get(ctx context.Context, tc domain.TenantContext, id uuid.UUID) (*domain.Process, error) {
	return m.getFunc(ctx, tc, id)
}

func (m *mockProcessService) List(ctx context.Context, tc domain.TenantContext) ([]*domain.Process, error) {
	return m.listFunc(ctx, tc)
}

func (m *mockProcessService) UpdateStatus(ctx context.Context, tc domain.TenantContext, id uuid.UUID, to domain.ProcessStatus) (*domain.Process, error) {
	return m.updateStatusFunc(ctx, tc, id, to)
}

func (m *mockProcessService) UpdateFields(ctx context.Context, tc domain.TenantContext, id uuid.UUID, patch process.Patch) (*domain.Process, error) {
	return m.updateFieldsFunc(ctx, tc, id, patch)
}

func (m *mockProcessService) Delete(ctx context.Context, tc domain.TenantContext, id uuid.UUID) error {
	return m.deleteFunc(ctx, tc, id)
}

func (m *mockProcessService) AppendEvent(ctx context.Context, tc domain.TenantContext, processID uuid.UUID, t domain.EventType, message string) (*domain.Event, error) {
	return m.appendEventFunc(ctx, tc, processID, t, message)
}

func (m *mockProcessService) ListEvents(ctx context.Context, tc domain.TenantContext, processID uuid.UUID) ([]*domain.Event, error) {
	return m.listEventsFunc(ctx, tc, processID)
}

func (m *mockProcessService) Stats(ctx context.Context, tc domain.TenantContext) (domain.Stats, error) {
	return m.statsFunc(ctx, tc)
}

// ---------------------------------------------------------------------------
// Mock SchemaChecker
// ---------------------------------------------------------------------------

type mockSchemaChecker struct {
	schemaStatusFunc func(ctx context.Context) (*postgres.SchemaStatus, error)
}

func (m *mockSchemaChecker) SchemaStatus(ctx context.Context) (*postgres.SchemaStatus, error) {
	return m.schemaStatusFunc(ctx)
}
