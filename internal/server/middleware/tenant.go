package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/sgi/internal/domain"
)

// ContextResolver turns the token's user and tenant into a TenantContext.
type ContextResolver interface {
	ResolveContext(ctx context.Context, userID, tenantID uuid.UUID) (*domain.TenantContext, error)
}

// RequireTenant resolves the caller's membership in the token's tenant and
// stores it for the handlers. It must be chained after Auth.
func RequireTenant(resolver ContextResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeProblem(w, http.StatusUnauthorized, "authentication required")
				return
			}
			tid, ok := TenantIDFromContext(r.Context())
			if !ok || tid == uuid.Nil {
				writeProblem(w, http.StatusForbidden, "valid tenant required")
				return
			}

			tc, err := resolver.ResolveContext(r.Context(), userID, tid)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrNotFound):
				writeProblem(w, http.StatusForbidden, "not a member of this tenant")
				return
			case errors.Is(err, domain.ErrBackendUnavailable):
				writeProblem(w, http.StatusServiceUnavailable, "backend unavailable, try again later")
				return
			case errors.Is(err, domain.ErrTimeout):
				writeProblem(w, http.StatusGatewayTimeout, "tenant context resolution timed out")
				return
			default:
				log.Error().Err(err).Str("user_id", userID.String()).Str("tenant_id", tid.String()).Msg("resolve tenant context")
				writeProblem(w, http.StatusInternalServerError, "failed to resolve tenant context")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenantContext(r.Context(), tc)))
		})
	}
}
