package process_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/process"
	"github.com/gosuda/sgi/internal/store/memory"
)

// ---------------------------------------------------------------------------
// Fixture backed by the in-memory store
// ---------------------------------------------------------------------------

type env struct {
	store *memory.Store
	svc   *process.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := memory.New()
	return &env{
		store: s,
		svc:   process.NewService(s.Processes(), s.Events(), s.Memberships(), "SGI", time.Second),
	}
}

func (e *env) tenant(t *testing.T, slug string) domain.TenantContext {
	t.Helper()
	ctx := context.Background()
	owner := &domain.User{ID: uuid.New(), Email: "owner@" + slug + ".test", Name: "Owner"}
	require.NoError(t, e.store.Users().Create(ctx, owner))
	ten := &domain.Tenant{ID: uuid.New(), Name: slug, Slug: slug}
	require.NoError(t, e.store.Tenants().CreateWithOwner(ctx, ten, &domain.Membership{
		TenantID: ten.ID, UserID: owner.ID, Role: domain.RoleOwner,
	}))
	return domain.TenantContext{UserID: owner.ID, TenantID: ten.ID, TenantSlug: slug, TenantName: slug, Role: domain.RoleOwner}
}

// member adds a user with role to the tenant of tc and returns its context.
func (e *env) member(t *testing.T, tc domain.TenantContext, role domain.Role) domain.TenantContext {
	t.Helper()
	ctx := context.Background()
	u := &domain.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com", Name: string(role)}
	require.NoError(t, e.store.Users().Create(ctx, u))
	require.NoError(t, e.store.Memberships().Create(ctx, &domain.Membership{
		TenantID: tc.TenantID, UserID: u.ID, Role: role,
	}))
	out := tc
	out.UserID = u.ID
	out.Role = role
	return out
}

func (e *env) create(t *testing.T, tc domain.TenantContext, title string) *domain.Process {
	t.Helper()
	p, err := e.svc.Create(context.Background(), tc, process.CreateInput{Title: title})
	require.NoError(t, err)
	return p
}

func (e *env) advance(t *testing.T, tc domain.TenantContext, id uuid.UUID, to domain.ProcessStatus) {
	t.Helper()
	_, err := e.svc.UpdateStatus(context.Background(), tc, id, to)
	require.NoError(t, err)
}

func countType(events []*domain.Event, typ domain.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func ptr[T any](v T) *T { return &v }

// ---------------------------------------------------------------------------
// Mock repositories for failure injection
// ---------------------------------------------------------------------------

type mockProcessRepo struct {
	createWithEventFunc       func(ctx context.Context, p *domain.Process, prefix string, ev *domain.Event) error
	getByIDFunc               func(ctx context.Context, tenantID, id uuid.UUID) (*domain.Process, error)
	listFunc                  func(ctx context.Context, tenantID uuid.UUID, filter domain.ProcessFilter) ([]*domain.Process, error)
	updateStatusWithEventFunc func(ctx context.Context, p *domain.Process, from domain.ProcessStatus, ev *domain.Event) error
	updateWithEventFunc       func(ctx context.Context, p *domain.Process, ev *domain.Event) error
	deleteFunc                func(ctx context.Context, tenantID, id uuid.UUID) error
	countByStatusFunc         func(ctx context.Context, tenantID uuid.UUID, filter domain.ProcessFilter) (map[domain.ProcessStatus]int, error)
}

func (m *mockProcessRepo) CreateWithEvent(ctx context.Context, p *domain.Process, prefix string, ev *domain.Event) error {
	return m.createWithEventFunc(ctx, p, prefix, ev)
}

func (m *mockProcessRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Process, error) {
	return m.getByIDFunc(ctx, tenantID, id)
}

func (m *mockProcessRepo) List(ctx context.Context, tenantID uuid.UUID, filter domain.ProcessFilter) ([]*domain.Process, error) {
	return m.listFunc(ctx, tenantID, filter)
}

func (m *mockProcessRepo) UpdateStatusWithEvent(ctx context.Context, p *domain.Process, from domain.ProcessStatus, ev *domain.Event) error {
	return m.updateStatusWithEventFunc(ctx, p, from, ev)
}

func (m *mockProcessRepo) UpdateWithEvent(ctx context.Context, p *domain.Process, ev *domain.Event) error {
	return m.updateWithEventFunc(ctx, p, ev)
}

func (m *mockProcessRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return m.deleteFunc(ctx, tenantID, id)
}

func (m *mockProcessRepo) CountByStatus(ctx context.Context, tenantID uuid.UUID, filter domain.ProcessFilter) (map[domain.ProcessStatus]int, error) {
	return m.countByStatusFunc(ctx, tenantID, filter)
}
