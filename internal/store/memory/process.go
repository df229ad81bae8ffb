package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/domain"
)

type ProcessRepo struct {
	s *Store
}

func (r *ProcessRepo) CreateWithEvent(_ context.Context, p *domain.Process, prefix string, ev *domain.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tenants[p.TenantID]; !ok {
		return fmt.Errorf("memory.ProcessRepo.CreateWithEvent: tenant: %w", domain.ErrNotFound)
	}
	if _, exists := r.s.processes[p.ID]; exists {
		return fmt.Errorf("memory.ProcessRepo.CreateWithEvent: %w", domain.ErrConflict)
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.s.now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	key := counterKey{p.TenantID, p.CreatedAt.Year()}
	r.s.counters[key]++
	p.Protocol = domain.FormatProtocol(prefix, key.year, r.s.counters[key])
	p.Version = 1

	r.s.processes[p.ID] = *cloneProcess(*p)
	ev.TenantID = p.TenantID
	ev.ProcessID = p.ID
	r.s.appendEventLocked(ev)
	return nil
}

func (r *ProcessRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.Process, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.processes[id]
	if !ok || p.TenantID != tenantID {
		return nil, fmt.Errorf("memory.ProcessRepo.GetByID: %w", domain.ErrNotFound)
	}
	return cloneProcess(p), nil
}

func (r *ProcessRepo) List(_ context.Context, tenantID uuid.UUID, filter domain.ProcessFilter) ([]*domain.Process, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Process
	for _, p := range r.s.processes {
		if p.TenantID != tenantID || !filter.Allows(&p) {
			continue
		}
		out = append(out, cloneProcess(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Protocol > out[j].Protocol
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *ProcessRepo) UpdateStatusWithEvent(_ context.Context, p *domain.Process, from domain.ProcessStatus, ev *domain.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.processes[p.ID]
	if !ok || cur.TenantID != p.TenantID {
		return fmt.Errorf("memory.ProcessRepo.UpdateStatusWithEvent: %w", domain.ErrNotFound)
	}
	if cur.Status != from {
		return fmt.Errorf("memory.ProcessRepo.UpdateStatusWithEvent: status changed concurrently: %w", domain.ErrConflict)
	}

	p.UpdatedAt = r.s.now()
	cur.Status = p.Status
	cur.UpdatedAt = p.UpdatedAt
	cur.Version++
	p.Version = cur.Version
	r.s.processes[p.ID] = cur
	ev.TenantID = p.TenantID
	ev.ProcessID = p.ID
	r.s.appendEventLocked(ev)
	return nil
}

func (r *ProcessRepo) UpdateWithEvent(_ context.Context, p *domain.Process, ev *domain.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.processes[p.ID]
	if !ok || cur.TenantID != p.TenantID {
		return fmt.Errorf("memory.ProcessRepo.UpdateWithEvent: %w", domain.ErrNotFound)
	}
	if cur.Version != p.Version {
		return fmt.Errorf("memory.ProcessRepo.UpdateWithEvent: version %d, stored %d: %w", p.Version, cur.Version, domain.ErrConflict)
	}

	p.UpdatedAt = r.s.now()
	cur.Title = p.Title
	cur.ClientName = p.ClientName
	cur.ClientDocument = p.ClientDocument
	cur.ClientContact = p.ClientContact
	cur.Assignee = copyUUID(p.Assignee)
	cur.ClientUserID = copyUUID(p.ClientUserID)
	cur.UpdatedAt = p.UpdatedAt
	cur.Version++
	p.Version = cur.Version
	r.s.processes[p.ID] = cur
	if ev != nil {
		ev.TenantID = p.TenantID
		ev.ProcessID = p.ID
		r.s.appendEventLocked(ev)
	}
	return nil
}

func (r *ProcessRepo) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.processes[id]
	if !ok || p.TenantID != tenantID {
		return fmt.Errorf("memory.ProcessRepo.Delete: %w", domain.ErrNotFound)
	}
	delete(r.s.processes, id)
	delete(r.s.events, id)
	return nil
}

func (r *ProcessRepo) CountByStatus(_ context.Context, tenantID uuid.UUID, filter domain.ProcessFilter) (map[domain.ProcessStatus]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[domain.ProcessStatus]int)
	for _, p := range r.s.processes {
		if p.TenantID != tenantID || !filter.Allows(&p) {
			continue
		}
		counts[p.Status]++
	}
	return counts, nil
}

type EventRepo struct {
	s *Store
}

func (r *EventRepo) Append(_ context.Context, ev *domain.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.processes[ev.ProcessID]
	if !ok || p.TenantID != ev.TenantID {
		return fmt.Errorf("memory.EventRepo.Append: process: %w", domain.ErrNotFound)
	}
	r.s.appendEventLocked(ev)
	return nil
}

// ListByProcess returns the timeline newest first.
func (r *EventRepo) ListByProcess(_ context.Context, tenantID, processID uuid.UUID) ([]*domain.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.processes[processID]
	if !ok || p.TenantID != tenantID {
		return nil, fmt.Errorf("memory.EventRepo.ListByProcess: %w", domain.ErrNotFound)
	}
	stored := r.s.events[processID]
	out := make([]*domain.Event, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		ev := stored[i]
		ev.AuthorID = copyUUID(ev.AuthorID)
		out = append(out, &ev)
	}
	return out, nil
}
