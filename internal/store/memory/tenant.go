package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/domain"
)

type TenantRepo struct {
	s *Store
}

func (r *TenantRepo) CreateWithOwner(_ context.Context, t *domain.Tenant, owner *domain.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.slugs[t.Slug]; exists {
		return fmt.Errorf("memory.TenantRepo.CreateWithOwner: slug %q: %w", t.Slug, domain.ErrConflict)
	}
	if _, exists := r.s.users[owner.UserID]; !exists {
		return fmt.Errorf("memory.TenantRepo.CreateWithOwner: owner: %w", domain.ErrNotFound)
	}

	r.s.tenants[t.ID] = *t
	r.s.slugs[t.Slug] = t.ID
	r.s.members[memberKey{t.ID, owner.UserID}] = *owner
	return nil
}

func (r *TenantRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tenants[id]
	if !ok {
		return nil, fmt.Errorf("memory.TenantRepo.GetByID: %w", domain.ErrNotFound)
	}
	return &t, nil
}

func (r *TenantRepo) GetBySlug(_ context.Context, slug string) (*domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.slugs[slug]
	if !ok {
		return nil, fmt.Errorf("memory.TenantRepo.GetBySlug: %w", domain.ErrNotFound)
	}
	t := r.s.tenants[id]
	return &t, nil
}

type UserRepo struct {
	s *Store
}

func (r *UserRepo) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, exists := r.s.emails[email]; exists {
		return fmt.Errorf("memory.UserRepo.Create: email: %w", domain.ErrConflict)
	}
	r.s.users[u.ID] = *u
	r.s.emails[email] = u.ID
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("memory.UserRepo.GetByID: %w", domain.ErrNotFound)
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.emails[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("memory.UserRepo.GetByEmail: %w", domain.ErrNotFound)
	}
	u := r.s.users[id]
	return &u, nil
}

type MembershipRepo struct {
	s *Store
}

func (r *MembershipRepo) Create(_ context.Context, m *domain.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tenants[m.TenantID]; !ok {
		return fmt.Errorf("memory.MembershipRepo.Create: tenant: %w", domain.ErrNotFound)
	}
	if _, ok := r.s.users[m.UserID]; !ok {
		return fmt.Errorf("memory.MembershipRepo.Create: user: %w", domain.ErrNotFound)
	}
	key := memberKey{m.TenantID, m.UserID}
	if _, exists := r.s.members[key]; exists {
		return fmt.Errorf("memory.MembershipRepo.Create: %w", domain.ErrConflict)
	}
	r.s.members[key] = *m
	return nil
}

func (r *MembershipRepo) Get(_ context.Context, tenantID, userID uuid.UUID) (*domain.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.members[memberKey{tenantID, userID}]
	if !ok {
		return nil, fmt.Errorf("memory.MembershipRepo.Get: %w", domain.ErrNotFound)
	}
	return &m, nil
}

func (r *MembershipRepo) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*domain.Member, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Member
	for key, m := range r.s.members {
		if key.tenantID != tenantID {
			continue
		}
		u := r.s.users[key.userID]
		out = append(out, &domain.Member{Membership: m, Email: u.Email, Name: u.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MembershipRepo) UpdateRole(_ context.Context, tenantID, userID uuid.UUID, role domain.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := memberKey{tenantID, userID}
	m, ok := r.s.members[key]
	if !ok {
		return fmt.Errorf("memory.MembershipRepo.UpdateRole: %w", domain.ErrNotFound)
	}
	if m.Role == domain.RoleOwner && role != domain.RoleOwner && !r.otherOwnerLocked(tenantID, userID) {
		return fmt.Errorf("memory.MembershipRepo.UpdateRole: %w", domain.ErrLastOwner)
	}
	m.Role = role
	m.UpdatedAt = r.s.now()
	r.s.members[key] = m
	return nil
}

// otherOwnerLocked reports whether the tenant has an owner besides userID.
func (r *MembershipRepo) otherOwnerLocked(tenantID, userID uuid.UUID) bool {
	for key, m := range r.s.members {
		if key.tenantID == tenantID && key.userID != userID && m.Role == domain.RoleOwner {
			return true
		}
	}
	return false
}

func (r *MembershipRepo) Delete(_ context.Context, tenantID, userID uuid.UUID, release domain.ReleaseFunc) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := memberKey{tenantID, userID}
	m, ok := r.s.members[key]
	if !ok {
		return nil, fmt.Errorf("memory.MembershipRepo.Delete: %w", domain.ErrNotFound)
	}
	if m.Role == domain.RoleOwner && !r.otherOwnerLocked(tenantID, userID) {
		return nil, fmt.Errorf("memory.MembershipRepo.Delete: %w", domain.ErrLastOwner)
	}

	var released []uuid.UUID
	for id, p := range r.s.processes {
		if p.TenantID != tenantID || p.Assignee == nil || *p.Assignee != userID {
			continue
		}
		p.Assignee = nil
		p.UpdatedAt = r.s.now()
		p.Version++
		r.s.processes[id] = p
		if release != nil {
			if ev := release(cloneProcess(p)); ev != nil {
				r.s.appendEventLocked(ev)
			}
		}
		released = append(released, id)
	}
	delete(r.s.members, key)
	return released, nil
}

func (r *MembershipRepo) Contexts(_ context.Context, userID uuid.UUID) ([]*domain.TenantContext, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.TenantContext
	for key, m := range r.s.members {
		if key.userID != userID {
			continue
		}
		t := r.s.tenants[key.tenantID]
		out = append(out, &domain.TenantContext{
			UserID:     userID,
			TenantID:   t.ID,
			TenantSlug: t.Slug,
			TenantName: t.Name,
			Role:       m.Role,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantName < out[j].TenantName })
	return out, nil
}

func (r *MembershipRepo) Context(_ context.Context, userID, tenantID uuid.UUID) (*domain.TenantContext, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.members[memberKey{tenantID, userID}]
	if !ok {
		return nil, fmt.Errorf("memory.MembershipRepo.Context: %w", domain.ErrNotFound)
	}
	t := r.s.tenants[tenantID]
	return &domain.TenantContext{
		UserID:     userID,
		TenantID:   t.ID,
		TenantSlug: t.Slug,
		TenantName: t.Name,
		Role:       m.Role,
	}, nil
}
