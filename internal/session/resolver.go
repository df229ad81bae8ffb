package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/domain"
)

// Resolver produces the tenant context of a user. A Nil tenantID asks the
// resolver to pick the user's only tenant.
type Resolver interface {
	ResolveContext(ctx context.Context, userID, tenantID uuid.UUID) (*domain.TenantContext, error)
}

// CachedResolver serves contexts from a Registry and falls back to src. A
// context resolved while a change for the same user and tenant was applied is
// returned but not cached.
type CachedResolver struct {
	reg *Registry
	src Resolver
}

func NewCachedResolver(reg *Registry, src Resolver) *CachedResolver {
	return &CachedResolver{reg: reg, src: src}
}

func (c *CachedResolver) ResolveContext(ctx context.Context, userID, tenantID uuid.UUID) (*domain.TenantContext, error) {
	if tenantID != uuid.Nil {
		if tc, ok := c.reg.Lookup(userID, tenantID); ok {
			return &tc, nil
		}
	}

	ticket := c.reg.BeginLookup(userID, tenantID)
	tc, err := c.src.ResolveContext(ctx, userID, tenantID)
	if err != nil {
		c.reg.EndLookup(ticket, nil)
		return nil, err
	}
	c.reg.EndLookup(ticket, tc)
	return tc, nil
}
