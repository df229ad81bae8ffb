package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/sgi/internal/auth"
	"github.com/gosuda/sgi/internal/config"
	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/process"
	"github.com/gosuda/sgi/internal/server"
	"github.com/gosuda/sgi/internal/session"
	"github.com/gosuda/sgi/internal/store/postgres"
	redisstore "github.com/gosuda/sgi/internal/store/redis"
	"github.com/gosuda/sgi/internal/tenant"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(cfg.Log.Level)
	if cfg.Log.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	if err := prepareSchema(ctx, cfg, store); err != nil {
		return err
	}

	// Session changes cross replicas through Redis when it is configured.
	var bus session.Bus
	if cfg.Redis.Addr != "" {
		pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Namespace)
		if err != nil {
			return err
		}
		defer pubsub.Close()
		bus = pubsub
	} else {
		log.Info().Msg("redis not configured, session changes stay in this process")
	}

	registry := session.NewRegistry(bus, cfg.Session.TTL, cfg.JWT.RefreshTTL)
	go func() {
		if runErr := registry.Run(ctx); runErr != nil {
			log.Error().Err(runErr).Msg("session registry stopped")
		}
	}()

	dir := tenant.NewDirectory(store.Tenants(), store.Memberships(), store.Users(), registry, cfg.Timeouts.Context, cfg.Timeouts.Query)
	processes := process.NewService(store.Processes(), store.Events(), store.Memberships(), cfg.Process.ProtocolPrefix, cfg.Timeouts.Query)
	authSvc := auth.NewService(store.Users(), dir, registry, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, server.Deps{
		Auth:      authSvc,
		Directory: dir,
		Processes: processes,
		Schema:    store,
		Sessions:  registry,
		Contexts:  session.NewCachedResolver(registry, dir),
	})

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

// prepareSchema applies migrations when enabled, otherwise refuses to start
// against a database that lacks required relations.
func prepareSchema(ctx context.Context, cfg *config.Config, store *postgres.Store) error {
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		log.Info().Msg("database schema migrated")
		return nil
	}

	status, err := store.SchemaStatus(ctx)
	if err != nil {
		return err
	}
	if !status.Ready {
		return fmt.Errorf("schema incomplete, missing %s (apply internal/store/postgres/schema or set SGI_DB_AUTO_MIGRATE=true): %w",
			strings.Join(status.Missing, ", "), domain.ErrBackendUnavailable)
	}
	return nil
}
