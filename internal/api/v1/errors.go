package v1

import (
	"context"
	"errors"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/sgi/internal/auth"
	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/server/middleware"
	"github.com/gosuda/sgi/internal/tenant"
)

// apiError maps a core error to its HTTP status. Unclassified errors become a
// generic 500 and are logged with the operation name; their text never
// reaches the client.
func apiError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
		return huma.Error404NotFound("not found")
	case errors.Is(err, domain.ErrUnauthorized):
		return huma.Error403Forbidden("operation not permitted for your role")
	case errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return huma.Error401Unauthorized("invalid or missing credentials")
	case errors.Is(err, domain.ErrInvalidTransition):
		return huma.Error409Conflict("status transition not allowed")
	case errors.Is(err, tenant.ErrSelectionRequired):
		return huma.Error409Conflict("select a tenant first")
	case errors.Is(err, auth.ErrUserAlreadyExists):
		return huma.Error409Conflict("user already exists")
	case errors.Is(err, domain.ErrConflict):
		return huma.Error409Conflict("conflicting update, reload and try again")
	case errors.Is(err, domain.ErrInvalidEventType):
		return huma.Error422UnprocessableEntity("event type cannot be appended directly")
	case errors.Is(err, domain.ErrValidation):
		return huma.Error422UnprocessableEntity(validationDetail(err))
	case errors.Is(err, domain.ErrBackendUnavailable):
		return huma.Error503ServiceUnavailable("backend unavailable, try again later")
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("request timed out, try again")
	}

	log.Error().Err(err).Str("operation", op).Msg("request failed")
	return huma.Error500InternalServerError("request failed, try again later")
}

// validationDetail keeps only the field message after the validation
// sentinel. Driver messages are never shown.
func validationDetail(err error) string {
	_, detail, ok := strings.Cut(err.Error(), domain.ErrValidation.Error()+": ")
	if !ok || detail == "" || strings.Contains(detail, "SQLSTATE") {
		return domain.ErrValidation.Error()
	}
	return detail
}

func tenantContext(ctx context.Context) (domain.TenantContext, error) {
	tc, ok := middleware.TenantContextFromContext(ctx)
	if !ok {
		return domain.TenantContext{}, huma.Error403Forbidden("missing tenant context")
	}
	return *tc, nil
}
