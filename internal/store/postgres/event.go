package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/sgi/internal/domain"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) Append(ctx context.Context, ev *domain.Event) error {
	if err := insertEvent(ctx, r.pool, ev); err != nil {
		return classify("eventRepo.Append", err)
	}
	return nil
}

func (r *EventRepo) ListByProcess(ctx context.Context, tenantID, processID uuid.UUID) ([]*domain.Event, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processes WHERE org_id = $1 AND id = $2)`,
		tenantID, processID,
	).Scan(&exists)
	if err != nil {
		return nil, classify("eventRepo.ListByProcess", err)
	}
	if !exists {
		return nil, fmt.Errorf("eventRepo.ListByProcess: %w", domain.ErrNotFound)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, org_id, process_id, seq, type, message, author_id, created_at
		 FROM process_events
		 WHERE org_id = $1 AND process_id = $2
		 ORDER BY created_at DESC, seq DESC`,
		tenantID, processID,
	)
	if err != nil {
		return nil, classify("eventRepo.ListByProcess", err)
	}
	defer rows.Close()

	events := make([]*domain.Event, 0)
	for rows.Next() {
		var (
			ev  domain.Event
			typ string
		)
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.ProcessID, &ev.Seq, &typ, &ev.Message, &ev.AuthorID, &ev.CreatedAt); err != nil {
			return nil, classify("eventRepo.ListByProcess: scan", err)
		}
		ev.Type = domain.EventType(typ)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("eventRepo.ListByProcess: rows", err)
	}

	return events, nil
}
