package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/sgi/internal/api/v1"
	"github.com/gosuda/sgi/internal/authz"
	"github.com/gosuda/sgi/internal/config"
	"github.com/gosuda/sgi/internal/metrics"
	"github.com/gosuda/sgi/internal/server/middleware"
)

// Deps carries the services the HTTP surface is wired to.
type Deps struct {
	Auth      v1.AuthService
	Directory v1.TenantDirectory
	Processes v1.ProcessService
	Schema    v1.SchemaChecker
	Sessions  middleware.SessionChecker
	Contexts  middleware.ContextResolver
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	cfg        *config.Config
}

// New creates a Server with all routes wired. ctx bounds the background
// cleanup of the rate limiters.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(requestLogger)
	router.Use(chimw.Recoverer)
	if cfg.Metrics {
		router.Use(metrics.Middleware)
	}
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	authn := middleware.Auth(cfg.JWT.Secret, deps.Sessions)
	tenantBound := middleware.RequireTenant(deps.Contexts)
	limit := middleware.RateLimit(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	// Mount API routes on /api/v1 with four sub-groups:
	// 1. Public: sign-in, invite-link lookup and schema check.
	// 2. Signed in, no tenant required.
	// 3. Signed in and bound to a tenant.
	// 4. Tenant-bound member management.
	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst))

			api := humachi.New(r, apiConfig("SGI Public API", true))
			registerPublicRoutes(api, deps)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Use(limit)

			api := humachi.New(r, apiConfig("SGI Session API", false))
			registerSessionRoutes(api, deps)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Use(tenantBound)
			r.Use(limit)

			api := humachi.New(r, apiConfig("SGI API", false))
			registerTenantRoutes(api, deps)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Use(tenantBound)
			r.Use(limit)
			r.Use(middleware.RequireOperation(authz.OpListMembers))

			api := humachi.New(r, apiConfig("SGI Members API", false))
			registerMemberRoutes(api, deps)
		})
	})

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.Metrics {
		router.Handle("/metrics", metrics.Handler())
	}

	return s
}

// apiConfig builds a huma config for one route group. Only the public group
// serves the docs and OpenAPI routes, which all groups would otherwise share.
func apiConfig(title string, docs bool) huma.Config {
	c := huma.DefaultConfig(title, "1.0.0")
	c.Servers = []*huma.Server{
		{URL: "/api/v1"},
	}
	if !docs {
		c.OpenAPIPath = ""
		c.DocsPath = ""
		c.SchemasPath = ""
	}
	return c
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
