package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/sgi/internal/auth"
	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/session"
	"github.com/gosuda/sgi/internal/store/memory"
	"github.com/gosuda/sgi/internal/tenant"
)

type env struct {
	store *memory.Store
	dir   *tenant.Directory
	reg   *session.Registry
	svc   *auth.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := memory.New()
	reg := session.NewRegistry(nil, time.Minute, time.Hour)
	dir := tenant.NewDirectory(s.Tenants(), s.Memberships(), s.Users(), reg, time.Second, time.Second)
	return &env{
		store: s,
		dir:   dir,
		reg:   reg,
		svc:   auth.NewService(s.Users(), dir, reg, testSecret, 15*time.Minute, 24*time.Hour),
	}
}

func (e *env) register(t *testing.T, email string) *domain.User {
	t.Helper()
	u, _, err := e.svc.Register(context.Background(), "", email, "password123", "User "+email)
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	owner := e.register(t, "owner@example.com")
	_, err := e.dir.CreateOrganization(ctx, owner.ID, "Acme", "acme")
	require.NoError(t, err)

	tests := []struct {
		name     string
		slug     string
		email    string
		password string
		userName string
		wantErr  error
		wantRole domain.Role
	}{
		{name: "plain", email: "ana@example.com", password: "password123", userName: "Ana"},
		{name: "invited joins as client", slug: "acme", email: "bia@example.com", password: "password123", userName: "Bia", wantRole: domain.RoleClient},
		{name: "duplicate email", email: "OWNER@example.com", password: "password123", userName: "X", wantErr: auth.ErrUserAlreadyExists},
		{name: "unknown slug", slug: "nowhere", email: "caio@example.com", password: "password123", userName: "Caio", wantErr: domain.ErrNotFound},
		{name: "bad email", email: "not-an-email", password: "password123", userName: "X", wantErr: domain.ErrValidation},
		{name: "short password", email: "dan@example.com", password: "short", userName: "Dan", wantErr: domain.ErrValidation},
		{name: "missing name", email: "eva@example.com", password: "password123", userName: " ", wantErr: domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, tc, err := e.svc.Register(ctx, tt.slug, tt.email, tt.password, tt.userName)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, u.ID)
			assert.NotEqual(t, tt.password, u.PasswordHash)
			if tt.wantRole != "" {
				require.NotNil(t, tc)
				assert.Equal(t, tt.wantRole, tc.Role)
				assert.Equal(t, "acme", tc.TenantSlug)
			} else {
				assert.Nil(t, tc)
			}
		})
	}

	_, err = e.store.Users().GetByEmail(ctx, "caio@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound, "unknown slug creates no user")
}

func TestLogin(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "ana@example.com")

	t.Run("wrong password", func(t *testing.T) {
		_, err := e.svc.Login(ctx, "ana@example.com", "wrong-password", "")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := e.svc.Login(ctx, "nobody@example.com", "password123", "")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("no tenant yet", func(t *testing.T) {
		out, err := e.svc.Login(ctx, "ana@example.com", "password123", "")
		require.NoError(t, err)
		assert.Nil(t, out.Tenant)
		assert.Empty(t, out.Tenants)

		id, err := auth.ParseAccessToken(testSecret, out.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, u.ID, id.UserID)
		assert.Equal(t, uuid.Nil, id.TenantID)
	})

	acme, err := e.dir.CreateOrganization(ctx, u.ID, "Acme", "acme")
	require.NoError(t, err)

	t.Run("single tenant selected automatically", func(t *testing.T) {
		out, err := e.svc.Login(ctx, "ana@example.com", "password123", "")
		require.NoError(t, err)
		require.NotNil(t, out.Tenant)
		assert.Equal(t, acme.TenantID, out.Tenant.TenantID)

		id, err := auth.ParseAccessToken(testSecret, out.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, acme.TenantID, id.TenantID)
		assert.Equal(t, domain.RoleOwner, id.Role)
		assert.Equal(t, int64(900), out.Tokens.ExpiresIn)
	})

	second, err := e.dir.CreateOrganization(ctx, u.ID, "Beta", "beta")
	require.NoError(t, err)

	t.Run("several tenants need selection", func(t *testing.T) {
		out, err := e.svc.Login(ctx, "ana@example.com", "password123", "")
		require.NoError(t, err)
		assert.Nil(t, out.Tenant)
		assert.Len(t, out.Tenants, 2)
	})

	t.Run("slug picks tenant", func(t *testing.T) {
		out, err := e.svc.Login(ctx, "ana@example.com", "password123", "beta")
		require.NoError(t, err)
		require.NotNil(t, out.Tenant)
		assert.Equal(t, second.TenantID, out.Tenant.TenantID)
	})

	t.Run("foreign slug", func(t *testing.T) {
		_, err := e.svc.Login(ctx, "ana@example.com", "password123", "gamma")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestSelectTenant(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "ana@example.com")
	acme, err := e.dir.CreateOrganization(ctx, u.ID, "Acme", "acme")
	require.NoError(t, err)

	var changes []session.Change
	e.reg.Subscribe(func(c session.Change) { changes = append(changes, c) })

	out, err := e.svc.SelectTenant(ctx, u.ID, "ACME")
	require.NoError(t, err)
	assert.Equal(t, acme.TenantID, out.Tenant.TenantID)

	require.Len(t, changes, 1)
	assert.Equal(t, session.KindTenantSelected, changes[0].Kind)
	assert.Equal(t, acme.TenantID, changes[0].TenantID)

	_, err = e.svc.SelectTenant(ctx, u.ID, "other")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.svc.SelectTenant(ctx, uuid.New(), "acme")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestRefreshToken(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	owner := e.register(t, "owner@example.com")
	acme, err := e.dir.CreateOrganization(ctx, owner.ID, "Acme", "acme")
	require.NoError(t, err)

	staffUser := e.register(t, "staff@example.com")
	_, err = e.dir.AddMember(ctx, *acme, "staff@example.com", domain.RoleStaff)
	require.NoError(t, err)

	out, err := e.svc.Login(ctx, "staff@example.com", "password123", "")
	require.NoError(t, err)

	t.Run("picks up the current role", func(t *testing.T) {
		require.NoError(t, e.dir.ChangeRole(ctx, *acme, staffUser.ID, domain.RoleAdmin))

		tokens, err := e.svc.RefreshToken(ctx, out.Tokens.RefreshToken)
		require.NoError(t, err)

		id, err := auth.ParseAccessToken(testSecret, tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAdmin, id.Role)
		assert.Equal(t, out.Tokens.RefreshToken, tokens.RefreshToken)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := e.svc.RefreshToken(ctx, out.Tokens.AccessToken)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := e.svc.RefreshToken(ctx, "garbage")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("revoked membership", func(t *testing.T) {
		_, err := e.dir.RemoveMember(ctx, *acme, staffUser.ID)
		require.NoError(t, err)

		_, err = e.svc.RefreshToken(ctx, out.Tokens.RefreshToken)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

func TestLogout_RevokesEarlierTokens(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "ana@example.com")

	old, err := auth.IssueRefreshToken(testSecret, uuid.Nil, u.ID, "", time.Hour)
	require.NoError(t, err)
	claims, err := auth.ValidateToken(testSecret, old)
	require.NoError(t, err)
	id, err := claims.Identity()
	require.NoError(t, err)
	issued := id.IssuedAt

	e.reg.Publish(ctx, session.Change{Kind: session.KindSignedOut, UserID: u.ID, At: issued.Add(2 * time.Second)})

	_, err = e.svc.RefreshToken(ctx, old)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.False(t, e.reg.Active(u.ID, issued))

	e.svc.Logout(ctx, u.ID)
	assert.True(t, e.reg.Active(u.ID, time.Now().Add(5*time.Second)))
}

func TestLogout_SameSecondTokenRevoked(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "ana@example.com")

	before, err := auth.IssueRefreshToken(testSecret, uuid.Nil, u.ID, "", time.Hour)
	require.NoError(t, err)

	e.svc.Logout(ctx, u.ID)

	_, err = e.svc.RefreshToken(ctx, before)
	assert.ErrorIs(t, err, auth.ErrInvalidToken, "token issued moments before sign-out")

	after, err := auth.IssueAccessToken(testSecret, uuid.Nil, u.ID, "", time.Hour)
	require.NoError(t, err)
	id, err := auth.ParseAccessToken(testSecret, after)
	require.NoError(t, err)
	assert.True(t, e.reg.Active(u.ID, id.IssuedAt), "token issued after sign-out")
}

func TestGetUser(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	u := e.register(t, "ana@example.com")

	got, err := e.svc.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got.Email)

	_, err = e.svc.GetUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
