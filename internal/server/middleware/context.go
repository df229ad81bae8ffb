package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/domain"
)

type contextKey string

const (
	ContextKeyUserID        contextKey = "user_id"
	ContextKeyTenantID      contextKey = "tenant_id"
	ContextKeyTenantContext contextKey = "tenant_context"
)

// WithIdentity stores the authenticated user and the tenant bound in the
// token, which is uuid.Nil before a tenant was selected.
func WithIdentity(ctx context.Context, userID, tenantID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, userID)
	return context.WithValue(ctx, ContextKeyTenantID, tenantID)
}

// WithTenantContext stores the resolved tenant context and its identity.
func WithTenantContext(ctx context.Context, tc *domain.TenantContext) context.Context {
	ctx = WithIdentity(ctx, tc.UserID, tc.TenantID)
	return context.WithValue(ctx, ContextKeyTenantContext, tc)
}

func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ContextKeyTenantID).(uuid.UUID)
	return v, ok
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ContextKeyUserID).(uuid.UUID)
	return v, ok
}

func TenantContextFromContext(ctx context.Context) (*domain.TenantContext, bool) {
	v, ok := ctx.Value(ContextKeyTenantContext).(*domain.TenantContext)
	return v, ok && v != nil
}

func RoleFromContext(ctx context.Context) (domain.Role, bool) {
	tc, ok := TenantContextFromContext(ctx)
	if !ok {
		return "", false
	}
	return tc.Role, true
}
