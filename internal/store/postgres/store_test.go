package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/process"
	"github.com/gosuda/sgi/internal/store/postgres"
)

func startStore(t *testing.T) *postgres.Store {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("sgi"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := postgres.New(ctx, dsn, 8)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

type seed struct {
	tenant *domain.Tenant
	owner  *domain.User
}

func seedTenant(t *testing.T, s *postgres.Store, slug string) *seed {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	owner := &domain.User{ID: uuid.New(), Email: slug + "@example.com", PasswordHash: "x", Name: "Owner " + slug, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Users().Create(ctx, owner))

	tenant := &domain.Tenant{ID: uuid.New(), Name: "Org " + slug, Slug: slug, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Tenants().CreateWithOwner(ctx, tenant, &domain.Membership{
		TenantID: tenant.ID, UserID: owner.ID, Role: domain.RoleOwner, CreatedAt: now, UpdatedAt: now,
	}))
	return &seed{tenant: tenant, owner: owner}
}

func addUser(t *testing.T, s *postgres.Store, tenantID uuid.UUID, email string, role domain.Role) *domain.User {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	u := &domain.User{ID: uuid.New(), Email: email, PasswordHash: "x", Name: email, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Users().Create(ctx, u))
	require.NoError(t, s.Memberships().Create(ctx, &domain.Membership{
		TenantID: tenantID, UserID: u.ID, Role: role, CreatedAt: now, UpdatedAt: now,
	}))
	return u
}

func createProcess(t *testing.T, s *postgres.Store, tenantID uuid.UUID, title string) *domain.Process {
	t.Helper()
	now := time.Now()
	p := &domain.Process{ID: uuid.New(), TenantID: tenantID, Title: title, Status: domain.ProcessStatusCadastro, CreatedAt: now, UpdatedAt: now}
	ev := &domain.Event{ID: uuid.New(), Type: domain.EventRegistro, Message: "criado", CreatedAt: now}
	require.NoError(t, s.Processes().CreateWithEvent(context.Background(), p, "SGI", ev))
	return p
}

func TestStore_Integration(t *testing.T) {
	t.Parallel()

	s := startStore(t)
	ctx := context.Background()

	t.Run("schema missing", func(t *testing.T) {
		status, err := s.SchemaStatus(ctx)
		require.NoError(t, err)
		assert.False(t, status.Ready)
		assert.ElementsMatch(t, postgres.RequiredRelations, status.Missing)

		_, err = s.Processes().CountByStatus(ctx, uuid.New(), domain.ProcessFilter{})
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	})

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrations are idempotent")

	status, err := s.SchemaStatus(ctx)
	require.NoError(t, err)
	require.True(t, status.Ready, "missing: %v", status.Missing)

	t.Run("tenants and users", func(t *testing.T) {
		a := seedTenant(t, s, "acme")

		got, err := s.Tenants().GetBySlug(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, a.tenant.ID, got.ID)

		err = s.Tenants().CreateWithOwner(ctx,
			&domain.Tenant{ID: uuid.New(), Name: "Dup", Slug: "acme", CreatedAt: time.Now(), UpdatedAt: time.Now()},
			&domain.Membership{UserID: a.owner.ID, Role: domain.RoleOwner, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		)
		assert.ErrorIs(t, err, domain.ErrConflict)

		u, err := s.Users().GetByEmail(ctx, "ACME@example.com")
		require.NoError(t, err)
		assert.Equal(t, a.owner.ID, u.ID)

		err = s.Users().Create(ctx, &domain.User{ID: uuid.New(), Email: "Acme@Example.com", PasswordHash: "x", Name: "dup"})
		assert.ErrorIs(t, err, domain.ErrConflict)

		_, err = s.Tenants().GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("protocols and timeline", func(t *testing.T) {
		a := seedTenant(t, s, "protocols")
		b := seedTenant(t, s, "protocols-b")

		first := createProcess(t, s, a.tenant.ID, "Primeiro")
		second := createProcess(t, s, a.tenant.ID, "Segundo")
		other := createProcess(t, s, b.tenant.ID, "Outro")

		year := time.Now().Year()
		assert.Equal(t, domain.FormatProtocol("SGI", year, 1), first.Protocol)
		assert.Equal(t, domain.FormatProtocol("SGI", year, 2), second.Protocol)
		assert.Equal(t, domain.FormatProtocol("SGI", year, 1), other.Protocol)

		_, err := s.Processes().GetByID(ctx, b.tenant.ID, first.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		first.Status = domain.ProcessStatusTriagem
		first.UpdatedAt = time.Now()
		require.NoError(t, s.Processes().UpdateStatusWithEvent(ctx, first, domain.ProcessStatusCadastro, &domain.Event{
			ID: uuid.New(), TenantID: a.tenant.ID, ProcessID: first.ID, Type: domain.EventStatusChange, Message: "Status alterado para: Triagem",
		}))

		err = s.Processes().UpdateStatusWithEvent(ctx, first, domain.ProcessStatusCadastro, &domain.Event{
			ID: uuid.New(), TenantID: a.tenant.ID, ProcessID: first.ID, Type: domain.EventStatusChange, Message: "late",
		})
		assert.ErrorIs(t, err, domain.ErrConflict)

		err = s.Events().Append(ctx, &domain.Event{
			ID: uuid.New(), TenantID: b.tenant.ID, ProcessID: first.ID, Type: domain.EventObservacao, Message: "cross tenant",
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		events, err := s.Events().ListByProcess(ctx, a.tenant.ID, first.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, domain.EventStatusChange, events[0].Type)
		assert.Equal(t, domain.EventRegistro, events[1].Type)
		assert.Greater(t, events[0].Seq, events[1].Seq)

		list, err := s.Processes().List(ctx, a.tenant.ID, domain.ProcessFilter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)

		counts, err := s.Processes().CountByStatus(ctx, a.tenant.ID, domain.ProcessFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, counts[domain.ProcessStatusCadastro])
		assert.Equal(t, 1, counts[domain.ProcessStatusTriagem])

		require.NoError(t, s.Processes().Delete(ctx, a.tenant.ID, second.ID))
		_, err = s.Events().ListByProcess(ctx, a.tenant.ID, second.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, s.Processes().Delete(ctx, a.tenant.ID, second.ID), domain.ErrNotFound)
	})

	t.Run("client filter", func(t *testing.T) {
		a := seedTenant(t, s, "clients")
		client := addUser(t, s, a.tenant.ID, "cliente@clients.com", domain.RoleClient)

		mine := createProcess(t, s, a.tenant.ID, "Meu")
		createProcess(t, s, a.tenant.ID, "Alheio")

		mine.ClientUserID = &client.ID
		mine.UpdatedAt = time.Now()
		require.NoError(t, s.Processes().UpdateWithEvent(ctx, mine, nil))

		filter := domain.ProcessFilter{ClientUserID: &client.ID}
		list, err := s.Processes().List(ctx, a.tenant.ID, filter)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, mine.ID, list[0].ID)

		counts, err := s.Processes().CountByStatus(ctx, a.tenant.ID, filter)
		require.NoError(t, err)
		assert.Equal(t, map[domain.ProcessStatus]int{domain.ProcessStatusCadastro: 1}, counts)
	})

	t.Run("membership removal releases processes", func(t *testing.T) {
		a := seedTenant(t, s, "release")
		staff := addUser(t, s, a.tenant.ID, "staff@release.com", domain.RoleStaff)

		p := createProcess(t, s, a.tenant.ID, "Atribuido")
		p.Assignee = &staff.ID
		p.UpdatedAt = time.Now()
		require.NoError(t, s.Processes().UpdateWithEvent(ctx, p, &domain.Event{
			ID: uuid.New(), TenantID: a.tenant.ID, ProcessID: p.ID, Type: domain.EventAtribuicao, Message: "atribuido",
		}))

		members, err := s.Memberships().ListByTenant(ctx, a.tenant.ID)
		require.NoError(t, err)
		assert.Len(t, members, 2)

		released, err := s.Memberships().Delete(ctx, a.tenant.ID, staff.ID, func(p *domain.Process) *domain.Event {
			return process.ReleaseEvent(p, a.owner.ID)
		})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{p.ID}, released)

		got, err := s.Processes().GetByID(ctx, a.tenant.ID, p.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Assignee)

		events, err := s.Events().ListByProcess(ctx, a.tenant.ID, p.ID)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, domain.EventAtribuicao, events[0].Type)

		_, err = s.Memberships().Delete(ctx, a.tenant.ID, staff.ID, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("contexts", func(t *testing.T) {
		a := seedTenant(t, s, "ctx-a")
		b := seedTenant(t, s, "ctx-b")
		require.NoError(t, s.Memberships().Create(ctx, &domain.Membership{
			TenantID: b.tenant.ID, UserID: a.owner.ID, Role: domain.RoleAdmin, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}))

		contexts, err := s.Memberships().Contexts(ctx, a.owner.ID)
		require.NoError(t, err)
		require.Len(t, contexts, 2)
		assert.Equal(t, "ctx-a", contexts[0].TenantSlug)
		assert.Equal(t, domain.RoleOwner, contexts[0].Role)
		assert.Equal(t, domain.RoleAdmin, contexts[1].Role)

		require.NoError(t, s.Memberships().UpdateRole(ctx, b.tenant.ID, a.owner.ID, domain.RoleStaff))
		tc, err := s.Memberships().Context(ctx, a.owner.ID, b.tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleStaff, tc.Role)

		_, err = s.Memberships().Context(ctx, uuid.New(), b.tenant.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("stale edit conflicts", func(t *testing.T) {
		a := seedTenant(t, s, "versions")
		p := createProcess(t, s, a.tenant.ID, "Versionado")
		require.EqualValues(t, 1, p.Version)

		first := *p
		first.Title = "Primeira edicao"
		first.UpdatedAt = time.Now()
		require.NoError(t, s.Processes().UpdateWithEvent(ctx, &first, &domain.Event{
			ID: uuid.New(), TenantID: a.tenant.ID, ProcessID: p.ID, Type: domain.EventObservacao, Message: "primeira",
		}))
		assert.EqualValues(t, 2, first.Version)

		second := *p
		second.ClientName = "Segunda edicao"
		second.UpdatedAt = time.Now()
		err := s.Processes().UpdateWithEvent(ctx, &second, &domain.Event{
			ID: uuid.New(), TenantID: a.tenant.ID, ProcessID: p.ID, Type: domain.EventObservacao, Message: "segunda",
		})
		require.ErrorIs(t, err, domain.ErrConflict)

		got, err := s.Processes().GetByID(ctx, a.tenant.ID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Primeira edicao", got.Title)
		assert.Empty(t, got.ClientName)
		assert.EqualValues(t, 2, got.Version)

		events, err := s.Events().ListByProcess(ctx, a.tenant.ID, p.ID)
		require.NoError(t, err)
		assert.Len(t, events, 2, "lost race appends nothing")

		got.Status = domain.ProcessStatusTriagem
		require.NoError(t, s.Processes().UpdateStatusWithEvent(ctx, got, domain.ProcessStatusCadastro, &domain.Event{
			ID: uuid.New(), TenantID: a.tenant.ID, ProcessID: p.ID, Type: domain.EventStatusChange, Message: "triagem",
		}))
		assert.EqualValues(t, 3, got.Version)

		err = s.Processes().UpdateWithEvent(ctx, &first, nil)
		assert.ErrorIs(t, err, domain.ErrConflict)

		missing := *got
		missing.ID = uuid.New()
		err = s.Processes().UpdateWithEvent(ctx, &missing, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("listings are not truncated", func(t *testing.T) {
		a := seedTenant(t, s, "bulk")

		const n = 1001
		for i := 0; i < n; i++ {
			createProcess(t, s, a.tenant.ID, "Lote")
			addUser(t, s, a.tenant.ID, fmt.Sprintf("bulk%04d@bulk.com", i), domain.RoleClient)
		}

		list, err := s.Processes().List(ctx, a.tenant.ID, domain.ProcessFilter{})
		require.NoError(t, err)
		assert.Len(t, list, n)

		counts, err := s.Processes().CountByStatus(ctx, a.tenant.ID, domain.ProcessFilter{})
		require.NoError(t, err)
		assert.Equal(t, n, counts[domain.ProcessStatusCadastro])

		members, err := s.Memberships().ListByTenant(ctx, a.tenant.ID)
		require.NoError(t, err)
		assert.Len(t, members, n+1)
	})

	t.Run("last owner is kept under concurrent demotions", func(t *testing.T) {
		a := seedTenant(t, s, "owners")
		second := addUser(t, s, a.tenant.ID, "second@owners.com", domain.RoleOwner)

		err := s.Memberships().UpdateRole(ctx, a.tenant.ID, uuid.New(), domain.RoleStaff)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		for round := 0; round < 5; round++ {
			errs := make(chan error, 2)
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				errs <- s.Memberships().UpdateRole(ctx, a.tenant.ID, a.owner.ID, domain.RoleAdmin)
			}()
			go func() {
				defer wg.Done()
				errs <- s.Memberships().UpdateRole(ctx, a.tenant.ID, second.ID, domain.RoleAdmin)
			}()
			wg.Wait()
			close(errs)

			failed := 0
			for err := range errs {
				if err != nil {
					assert.ErrorIs(t, err, domain.ErrLastOwner)
					failed++
				}
			}
			assert.Equal(t, 1, failed, "round %d", round)

			members, err := s.Memberships().ListByTenant(ctx, a.tenant.ID)
			require.NoError(t, err)
			owners := 0
			for _, m := range members {
				if m.Role == domain.RoleOwner {
					owners++
				}
			}
			require.Equal(t, 1, owners, "round %d", round)

			require.NoError(t, s.Memberships().UpdateRole(ctx, a.tenant.ID, a.owner.ID, domain.RoleOwner))
			require.NoError(t, s.Memberships().UpdateRole(ctx, a.tenant.ID, second.ID, domain.RoleOwner))
		}

		require.NoError(t, s.Memberships().UpdateRole(ctx, a.tenant.ID, second.ID, domain.RoleStaff))
		_, err = s.Memberships().Delete(ctx, a.tenant.ID, a.owner.ID, nil)
		assert.ErrorIs(t, err, domain.ErrLastOwner)

		_, err = s.Memberships().Delete(ctx, a.tenant.ID, second.ID, nil)
		require.NoError(t, err)
	})

	t.Run("concurrent creates get unique protocols", func(t *testing.T) {
		a := seedTenant(t, s, "concurrent")

		const n = 10
		protocols := make(chan string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p := &domain.Process{ID: uuid.New(), TenantID: a.tenant.ID, Title: "Paralelo", Status: domain.ProcessStatusCadastro}
				ev := &domain.Event{ID: uuid.New(), Type: domain.EventRegistro, Message: "criado"}
				if err := s.Processes().CreateWithEvent(ctx, p, "SGI", ev); err == nil {
					protocols <- p.Protocol
				}
			}()
		}
		wg.Wait()
		close(protocols)

		seen := map[string]bool{}
		for p := range protocols {
			assert.False(t, seen[p], "duplicate protocol %s", p)
			seen[p] = true
		}
		assert.Len(t, seen, n)
	})
}
