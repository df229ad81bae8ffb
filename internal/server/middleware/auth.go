package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/sgi/internal/auth"
)

// SessionChecker rejects tokens issued before the user signed out.
type SessionChecker interface {
	Active(userID uuid.UUID, issuedAt time.Time) bool
}

func Auth(jwtSecret string, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractBearer(r)
			if tok == "" {
				writeProblem(w, http.StatusUnauthorized, "missing or invalid credentials")
				return
			}

			id, err := auth.ParseAccessToken(jwtSecret, tok)
			if err != nil {
				log.Debug().Err(err).Msg("auth: rejected token")
				writeProblem(w, http.StatusUnauthorized, "missing or invalid credentials")
				return
			}

			if sessions != nil && !sessions.Active(id.UserID, id.IssuedAt) {
				writeProblem(w, http.StatusUnauthorized, "session ended")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id.UserID, id.TenantID)))
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:]
	}
	return ""
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"title":"` + http.StatusText(status) + `","status":` + strconv.Itoa(status) + `,"detail":"` + detail + `"}`))
}
