package middleware

import (
	"net/http"

	"github.com/gosuda/sgi/internal/authz"
)

// RequireOperation returns middleware that checks the resolved tenant role
// against the authorization gate. It must be chained after RequireTenant.
//
// Returns 401 Unauthorized when no tenant context is present and 403
// Forbidden when the role may not perform op.
func RequireOperation(op authz.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok || role == "" {
				writeProblem(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if !authz.Can(role, op) {
				writeProblem(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
