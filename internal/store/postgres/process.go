package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/sgi/internal/domain"
)

const processColumns = `id, org_id, title, protocol, status, client_name, client_document,
	client_contact, assignee, client_user_id, created_at, updated_at, version`

type ProcessRepo struct {
	pool *pgxpool.Pool
}

func NewProcessRepo(pool *pgxpool.Pool) *ProcessRepo {
	return &ProcessRepo{pool: pool}
}

// CreateWithEvent allocates the next protocol number for the tenant and year,
// then stores the process and its first event. The counter row lock
// serializes concurrent creations within a tenant.
func (r *ProcessRepo) CreateWithEvent(ctx context.Context, p *domain.Process, prefix string, ev *domain.Event) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		year := p.CreatedAt.Year()

		var seq int64
		err := tx.QueryRow(ctx,
			`INSERT INTO protocol_counters (org_id, year, last) VALUES ($1, $2, 1)
			 ON CONFLICT (org_id, year) DO UPDATE SET last = protocol_counters.last + 1
			 RETURNING last`,
			p.TenantID, year,
		).Scan(&seq)
		if err != nil {
			return err
		}
		protocol := domain.FormatProtocol(prefix, year, seq)

		_, err = tx.Exec(ctx,
			`INSERT INTO processes (id, org_id, title, protocol, status, client_name, client_document,
				client_contact, assignee, client_user_id, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)`,
			p.ID, p.TenantID, p.Title, protocol, p.Status, p.ClientName, p.ClientDocument,
			p.ClientContact, p.Assignee, p.ClientUserID, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return err
		}
		p.Protocol = protocol
		p.Version = 1

		ev.TenantID = p.TenantID
		ev.ProcessID = p.ID
		return insertEvent(ctx, tx, ev)
	})
	if err != nil {
		p.Protocol = ""
		p.Version = 0
		return classify("processRepo.CreateWithEvent", err)
	}

	return nil
}

func (r *ProcessRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Process, error) {
	p, err := scanProcess(r.pool.QueryRow(ctx,
		`SELECT `+processColumns+` FROM processes WHERE org_id = $1 AND id = $2`,
		tenantID, id,
	))
	if err != nil {
		return nil, classify("processRepo.GetByID", err)
	}

	return p, nil
}

func (r *ProcessRepo) List(ctx context.Context, tenantID uuid.UUID, filter domain.ProcessFilter) ([]*domain.Process, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+processColumns+` FROM processes
		 WHERE org_id = $1 AND ($2::uuid IS NULL OR client_user_id = $2)
		 ORDER BY created_at DESC, protocol DESC`,
		tenantID, filter.ClientUserID,
	)
	if err != nil {
		return nil, classify("processRepo.List", err)
	}
	defer rows.Close()

	processes, err := scanProcesses(rows)
	if err != nil {
		return nil, classify("processRepo.List", err)
	}

	return processes, nil
}

func (r *ProcessRepo) UpdateStatusWithEvent(ctx context.Context, p *domain.Process, from domain.ProcessStatus, ev *domain.Event) error {
	var version int64
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE processes SET status = $1, updated_at = $2, version = version + 1
			 WHERE org_id = $3 AND id = $4 AND status = $5
			 RETURNING version`,
			p.Status, p.UpdatedAt, p.TenantID, p.ID, from,
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrMoved(ctx, tx, p.TenantID, p.ID)
		}
		if err != nil {
			return err
		}

		return insertEvent(ctx, tx, ev)
	})
	if err != nil {
		return classify("processRepo.UpdateStatusWithEvent", err)
	}
	p.Version = version

	return nil
}

// UpdateWithEvent writes the editable fields only while the stored version
// still matches p.Version.
func (r *ProcessRepo) UpdateWithEvent(ctx context.Context, p *domain.Process, ev *domain.Event) error {
	var version int64
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE processes SET title = $1, client_name = $2, client_document = $3,
				client_contact = $4, assignee = $5, client_user_id = $6, updated_at = $7,
				version = version + 1
			 WHERE org_id = $8 AND id = $9 AND version = $10
			 RETURNING version`,
			p.Title, p.ClientName, p.ClientDocument, p.ClientContact,
			p.Assignee, p.ClientUserID, p.UpdatedAt, p.TenantID, p.ID, p.Version,
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrMoved(ctx, tx, p.TenantID, p.ID)
		}
		if err != nil {
			return err
		}
		if ev == nil {
			return nil
		}

		return insertEvent(ctx, tx, ev)
	})
	if err != nil {
		return classify("processRepo.UpdateWithEvent", err)
	}
	p.Version = version

	return nil
}

func (r *ProcessRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM processes WHERE org_id = $1 AND id = $2`,
		tenantID, id,
	)
	if err != nil {
		return classify("processRepo.Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("processRepo.Delete: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *ProcessRepo) CountByStatus(ctx context.Context, tenantID uuid.UUID, filter domain.ProcessFilter) (map[domain.ProcessStatus]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, count(*) FROM processes
		 WHERE org_id = $1 AND ($2::uuid IS NULL OR client_user_id = $2)
		 GROUP BY status`,
		tenantID, filter.ClientUserID,
	)
	if err != nil {
		return nil, classify("processRepo.CountByStatus", err)
	}
	defer rows.Close()

	counts := make(map[domain.ProcessStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, classify("processRepo.CountByStatus: scan", err)
		}
		counts[domain.ProcessStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify("processRepo.CountByStatus: rows", err)
	}

	return counts, nil
}

// missingOrMoved explains a conditional update that touched no row.
func missingOrMoved(ctx context.Context, q querier, tenantID, id uuid.UUID) error {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processes WHERE org_id = $1 AND id = $2)`,
		tenantID, id,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

// insertEvent appends ev only when its process belongs to ev.TenantID, and
// fills the store-assigned Seq.
func insertEvent(ctx context.Context, q querier, ev *domain.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	err := q.QueryRow(ctx,
		`INSERT INTO process_events (id, org_id, process_id, type, message, author_id, created_at)
		 SELECT $1, $2, $3, $4, $5, $6, $7
		 WHERE EXISTS (SELECT 1 FROM processes WHERE org_id = $2 AND id = $3)
		 RETURNING seq, created_at`,
		ev.ID, ev.TenantID, ev.ProcessID, ev.Type, ev.Message, ev.AuthorID, ev.CreatedAt,
	).Scan(&ev.Seq, &ev.CreatedAt)
	if err != nil {
		return err
	}
	return nil
}

func scanProcess(row pgx.Row) (*domain.Process, error) {
	var (
		p      domain.Process
		status string
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Title, &p.Protocol, &status, &p.ClientName, &p.ClientDocument,
		&p.ClientContact, &p.Assignee, &p.ClientUserID, &p.CreatedAt, &p.UpdatedAt, &p.Version,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.ProcessStatus(status)
	return &p, nil
}

func scanProcesses(rows pgx.Rows) ([]*domain.Process, error) {
	var processes []*domain.Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		processes = append(processes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return processes, nil
}
