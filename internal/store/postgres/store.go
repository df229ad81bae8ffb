package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/sgi/internal/domain"
)

type Store struct {
	pool        *pgxpool.Pool
	tenants     *TenantRepo
	users       *UserRepo
	memberships *MembershipRepo
	processes   *ProcessRepo
	events      *EventRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, classify("postgres.New: connect", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, classify("postgres.New: ping", err)
	}

	return &Store{
		pool:        pool,
		tenants:     NewTenantRepo(pool),
		users:       NewUserRepo(pool),
		memberships: NewMembershipRepo(pool),
		processes:   NewProcessRepo(pool),
		events:      NewEventRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify("postgres.Ping", err)
	}
	return nil
}

func (s *Store) Tenants() domain.TenantRepository         { return s.tenants }
func (s *Store) Users() domain.UserRepository             { return s.users }
func (s *Store) Memberships() domain.MembershipRepository { return s.memberships }
func (s *Store) Processes() domain.ProcessRepository      { return s.processes }
func (s *Store) Events() domain.EventRepository           { return s.events }

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// withTx runs fn in a transaction that is committed only when fn succeeds.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
