// Package tenant resolves who is calling, on behalf of which organization and
// with what role, and manages organizations and their memberships.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/sgi/internal/authz"
	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/metrics"
	"github.com/gosuda/sgi/internal/process"
	"github.com/gosuda/sgi/internal/session"
)

// ErrSelectionRequired is returned when a user belongs to several tenants and
// none was selected.
var ErrSelectionRequired = errors.New("tenant: tenant selection required")

// Notifier receives session changes caused by membership updates.
type Notifier interface {
	Publish(ctx context.Context, c session.Change)
}

type Directory struct {
	tenants  domain.TenantRepository
	members  domain.MembershipRepository
	users    domain.UserRepository
	notifier Notifier

	contextTimeout time.Duration
	queryTimeout   time.Duration
}

// NewDirectory creates a tenant directory. contextTimeout bounds context
// resolution, queryTimeout every other backend call. notifier may be nil.
func NewDirectory(tenants domain.TenantRepository, members domain.MembershipRepository, users domain.UserRepository, notifier Notifier, contextTimeout, queryTimeout time.Duration) *Directory {
	return &Directory{
		tenants:        tenants,
		members:        members,
		users:          users,
		notifier:       notifier,
		contextTimeout: contextTimeout,
		queryTimeout:   queryTimeout,
	}
}

// ResolveContext returns the caller's context in tenantID. With a Nil
// tenantID the user's only membership is used; several memberships yield
// ErrSelectionRequired and none yields domain.ErrNotFound.
func (d *Directory) ResolveContext(ctx context.Context, userID, tenantID uuid.UUID) (*domain.TenantContext, error) {
	ctx, cancel := bounded(ctx, d.contextTimeout)
	defer cancel()

	if tenantID != uuid.Nil {
		tc, err := d.members.Context(ctx, userID, tenantID)
		if err != nil {
			return nil, fmt.Errorf("tenant.ResolveContext: %w", classify(ctx, err))
		}
		return tc, nil
	}

	contexts, err := d.members.Contexts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("tenant.ResolveContext: %w", classify(ctx, err))
	}
	switch len(contexts) {
	case 0:
		return nil, fmt.Errorf("tenant.ResolveContext: user has no membership: %w", domain.ErrNotFound)
	case 1:
		return contexts[0], nil
	default:
		return nil, fmt.Errorf("tenant.ResolveContext: %d memberships: %w", len(contexts), ErrSelectionRequired)
	}
}

// ListContexts returns every tenant the user belongs to.
func (d *Directory) ListContexts(ctx context.Context, userID uuid.UUID) ([]*domain.TenantContext, error) {
	ctx, cancel := bounded(ctx, d.contextTimeout)
	defer cancel()

	contexts, err := d.members.Contexts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("tenant.ListContexts: %w", classify(ctx, err))
	}
	return contexts, nil
}

// ResolveTenantBySlug looks up an organization from an invitation slug.
func (d *Directory) ResolveTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	normalized, err := domain.NormalizeSlug(slug)
	if err != nil {
		return nil, fmt.Errorf("tenant.ResolveTenantBySlug: %q: %w", slug, domain.ErrNotFound)
	}

	ctx, cancel := bounded(ctx, d.queryTimeout)
	defer cancel()

	t, err := d.tenants.GetBySlug(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("tenant.ResolveTenantBySlug: %w", classify(ctx, err))
	}
	return t, nil
}

// CreateOrganization creates a tenant with userID as its owner.
func (d *Directory) CreateOrganization(ctx context.Context, userID uuid.UUID, name, slug string) (*domain.TenantContext, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tenant.CreateOrganization: %w: name is required", domain.ErrValidation)
	}
	normalized, err := domain.NormalizeSlug(slug)
	if err != nil {
		return nil, fmt.Errorf("tenant.CreateOrganization: %w", err)
	}

	ctx, cancel := bounded(ctx, d.queryTimeout)
	defer cancel()

	now := time.Now()
	t := &domain.Tenant{
		ID:        uuid.New(),
		Name:      name,
		Slug:      normalized,
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := &domain.Membership{
		TenantID:  t.ID,
		UserID:    userID,
		Role:      domain.RoleOwner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.tenants.CreateWithOwner(ctx, t, owner); err != nil {
		return nil, fmt.Errorf("tenant.CreateOrganization: %w", classify(ctx, err))
	}

	log.Info().
		Str("tenant_id", t.ID.String()).
		Str("slug", t.Slug).
		Str("owner_id", userID.String()).
		Msg("organization created")

	return &domain.TenantContext{
		UserID:     userID,
		TenantID:   t.ID,
		TenantSlug: t.Slug,
		TenantName: t.Name,
		Role:       domain.RoleOwner,
	}, nil
}

// Join adds userID to the tenant identified by slug with the client role.
func (d *Directory) Join(ctx context.Context, slug string, userID uuid.UUID) (*domain.TenantContext, error) {
	t, err := d.ResolveTenantBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("tenant.Join: %w", err)
	}

	ctx, cancel := bounded(ctx, d.queryTimeout)
	defer cancel()

	now := time.Now()
	m := &domain.Membership{
		TenantID:  t.ID,
		UserID:    userID,
		Role:      domain.RoleClient,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.members.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("tenant.Join: %w", classify(ctx, err))
	}

	log.Info().
		Str("tenant_id", t.ID.String()).
		Str("user_id", userID.String()).
		Msg("member joined")

	return &domain.TenantContext{
		UserID:     userID,
		TenantID:   t.ID,
		TenantSlug: t.Slug,
		TenantName: t.Name,
		Role:       m.Role,
	}, nil
}

func bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}

func (d *Directory) notify(ctx context.Context, c session.Change) {
	if d.notifier != nil {
		d.notifier.Publish(ctx, c)
	}
}

func gate(tc domain.TenantContext, op authz.Operation) error {
	if err := authz.Require(tc.Role, op); err != nil {
		metrics.RecordRejection(string(op), "unauthorized")
		return err
	}
	return nil
}

// releaseFunc records the loss of an assignee on each affected process.
func releaseFunc(actor uuid.UUID) domain.ReleaseFunc {
	return func(p *domain.Process) *domain.Event {
		metrics.RecordEvent(string(domain.EventAtribuicao))
		return process.ReleaseEvent(p, actor)
	}
}
