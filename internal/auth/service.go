package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/argon2"

	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/session"
)

// Sentinel errors for the auth package.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserAlreadyExists  = errors.New("auth: user already exists")
	ErrUserNotFound       = errors.New("auth: user not found")
)

// argon2id parameters following OWASP recommendations.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16

	minPasswordLen = 8
)

// Directory is the part of the tenant directory used by sign-in flows.
type Directory interface {
	ResolveContext(ctx context.Context, userID, tenantID uuid.UUID) (*domain.TenantContext, error)
	ListContexts(ctx context.Context, userID uuid.UUID) ([]*domain.TenantContext, error)
	ResolveTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	Join(ctx context.Context, slug string, userID uuid.UUID) (*domain.TenantContext, error)
}

// Sessions publishes session changes and knows which tokens were revoked.
type Sessions interface {
	Publish(ctx context.Context, c session.Change)
	Active(userID uuid.UUID, issuedAt time.Time) bool
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime in seconds
}

// SignIn is the result of a successful sign-in or tenant selection. Tenant is
// nil while the user still has to pick one of Tenants.
type SignIn struct {
	User    *domain.User            `json:"user"`
	Tokens  Tokens                  `json:"tokens"`
	Tenant  *domain.TenantContext   `json:"tenant,omitempty"`
	Tenants []*domain.TenantContext `json:"tenants"`
}

// Service provides authentication operations.
type Service struct {
	users      domain.UserRepository
	dir        Directory
	sessions   Sessions
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService creates a new auth service.
func NewService(users domain.UserRepository, dir Directory, sessions Sessions, jwtSecret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		users:      users,
		dir:        dir,
		sessions:   sessions,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Register creates a new user with email/password. With a tenantSlug the user
// joins that organization as a client. The password is hashed with argon2id
// before storage.
func (s *Service) Register(ctx context.Context, tenantSlug, email, password, name string) (*domain.User, *domain.TenantContext, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, fmt.Errorf("auth.Register: %w: invalid email", domain.ErrValidation)
	}
	if len(password) < minPasswordLen {
		return nil, nil, fmt.Errorf("auth.Register: %w: password must have at least %d characters", domain.ErrValidation, minPasswordLen)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, fmt.Errorf("auth.Register: %w: name is required", domain.ErrValidation)
	}

	// Resolve the invitation first so an unknown slug creates nothing.
	if tenantSlug != "" {
		if _, err := s.dir.ResolveTenantBySlug(ctx, tenantSlug); err != nil {
			return nil, nil, fmt.Errorf("auth.Register: %w", err)
		}
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, nil, fmt.Errorf("auth.Register: %w", ErrUserAlreadyExists)
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, fmt.Errorf("auth.Register: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("auth.Register: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, nil, fmt.Errorf("auth.Register: %w", ErrUserAlreadyExists)
		}
		return nil, nil, fmt.Errorf("auth.Register: %w", err)
	}

	var tc *domain.TenantContext
	if tenantSlug != "" {
		if tc, err = s.dir.Join(ctx, tenantSlug, user.ID); err != nil {
			return user, nil, fmt.Errorf("auth.Register: %w", err)
		}
	}

	log.Info().Str("user_id", user.ID.String()).Bool("invited", tc != nil).Msg("user registered")
	return user, tc, nil
}

// Login validates email/password and returns tokens. The tokens are bound to
// the tenant named by tenantSlug, or to the user's only tenant when no slug is
// given.
func (s *Service) Login(ctx context.Context, email, password, tenantSlug string) (*SignIn, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("auth.Login: %w", ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("auth.Login: %w", err)
	}

	if !verifyPassword(password, user.PasswordHash) {
		return nil, fmt.Errorf("auth.Login: %w", ErrInvalidCredentials)
	}

	contexts, err := s.dir.ListContexts(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("auth.Login: %w", err)
	}

	var selected *domain.TenantContext
	switch {
	case tenantSlug != "":
		if selected = findBySlug(contexts, tenantSlug); selected == nil {
			return nil, fmt.Errorf("auth.Login: tenant %q: %w", tenantSlug, domain.ErrNotFound)
		}
	case len(contexts) == 1:
		selected = contexts[0]
	}

	out, err := s.signIn(user, selected, contexts)
	if err != nil {
		return nil, fmt.Errorf("auth.Login: %w", err)
	}

	change := session.Change{Kind: session.KindSignedIn, UserID: user.ID}
	if selected != nil {
		change.TenantID = selected.TenantID
		change.Role = selected.Role
	}
	s.sessions.Publish(ctx, change)

	return out, nil
}

// SelectTenant issues tokens bound to the tenant with the given slug.
func (s *Service) SelectTenant(ctx context.Context, userID uuid.UUID, tenantSlug string) (*SignIn, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth.SelectTenant: %w", err)
	}

	contexts, err := s.dir.ListContexts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth.SelectTenant: %w", err)
	}
	selected := findBySlug(contexts, tenantSlug)
	if selected == nil {
		return nil, fmt.Errorf("auth.SelectTenant: tenant %q: %w", tenantSlug, domain.ErrNotFound)
	}

	out, err := s.signIn(user, selected, contexts)
	if err != nil {
		return nil, fmt.Errorf("auth.SelectTenant: %w", err)
	}

	s.sessions.Publish(ctx, session.Change{
		Kind:     session.KindTenantSelected,
		UserID:   userID,
		TenantID: selected.TenantID,
		Role:     selected.Role,
	})
	return out, nil
}

// RefreshToken validates a refresh token and issues a new access token with
// the user's current role.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	claims, err := ValidateToken(s.jwtSecret, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("auth.RefreshToken: %w", err)
	}

	if claims.TokenType != tokenTypeRefresh {
		return nil, fmt.Errorf("auth.RefreshToken: %w", ErrInvalidToken)
	}

	id, err := claims.Identity()
	if err != nil {
		return nil, fmt.Errorf("auth.RefreshToken: %w", err)
	}
	if !s.sessions.Active(id.UserID, id.IssuedAt) {
		return nil, fmt.Errorf("auth.RefreshToken: signed out: %w", ErrInvalidToken)
	}

	// Verify the user still exists and fetch the current role.
	if _, err := s.GetUser(ctx, id.UserID); err != nil {
		return nil, fmt.Errorf("auth.RefreshToken: %w", err)
	}

	role := domain.Role("")
	if id.TenantID != uuid.Nil {
		tc, err := s.dir.ResolveContext(ctx, id.UserID, id.TenantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("auth.RefreshToken: membership revoked: %w", ErrInvalidToken)
			}
			return nil, fmt.Errorf("auth.RefreshToken: %w", err)
		}
		role = tc.Role
	}

	access, err := IssueAccessToken(s.jwtSecret, id.TenantID, id.UserID, role, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("auth.RefreshToken: %w", err)
	}

	return &Tokens{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// Logout revokes every token issued to the user so far.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) {
	s.sessions.Publish(ctx, session.Change{Kind: session.KindSignedOut, UserID: userID, At: time.Now()})
	log.Info().Str("user_id", userID.String()).Msg("user signed out")
}

// GetUser returns a user by ID (for middleware use).
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("auth.GetUser: %w", ErrUserNotFound)
		}
		return nil, fmt.Errorf("auth.GetUser: %w", err)
	}

	return user, nil
}

func (s *Service) signIn(user *domain.User, selected *domain.TenantContext, contexts []*domain.TenantContext) (*SignIn, error) {
	tenantID, role := uuid.Nil, domain.Role("")
	if selected != nil {
		tenantID, role = selected.TenantID, selected.Role
	}

	access, err := IssueAccessToken(s.jwtSecret, tenantID, user.ID, role, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := IssueRefreshToken(s.jwtSecret, tenantID, user.ID, role, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	if contexts == nil {
		contexts = []*domain.TenantContext{}
	}
	return &SignIn{
		User: user,
		Tokens: Tokens{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresIn:    int64(s.accessTTL.Seconds()),
		},
		Tenant:  selected,
		Tenants: contexts,
	}, nil
}

func findBySlug(contexts []*domain.TenantContext, slug string) *domain.TenantContext {
	normalized, err := domain.NormalizeSlug(slug)
	if err != nil {
		return nil
	}
	for _, tc := range contexts {
		if tc.TenantSlug == normalized {
			return tc
		}
	}
	return nil
}

// hashPassword generates an argon2id hash with a random salt.
// Format: hex(salt) + "$" + hex(hash)
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(hash), nil
}

// verifyPassword checks a password against an argon2id hash.
func verifyPassword(password, encoded string) bool {
	saltHex, hashHex, ok := strings.Cut(encoded, "$")
	if !ok || saltHex == "" || hashHex == "" {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}

	expectedHash, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	// Constant-time comparison to prevent timing attacks.
	if len(computed) != len(expectedHash) {
		return false
	}

	var diff byte
	for i := range computed {
		diff |= computed[i] ^ expectedHash[i]
	}

	return diff == 0
}
