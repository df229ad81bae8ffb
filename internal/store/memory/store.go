// Package memory is an in-process implementation of every repository with the
// same tenant isolation and atomicity guarantees as the postgres store. A
// single lock stands in for transactions.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/domain"
)

type memberKey struct {
	tenantID uuid.UUID
	userID   uuid.UUID
}

type counterKey struct {
	tenantID uuid.UUID
	year     int
}

// Store holds all relations behind one mutex.
type Store struct {
	mu sync.RWMutex

	tenants   map[uuid.UUID]domain.Tenant
	slugs     map[string]uuid.UUID
	users     map[uuid.UUID]domain.User
	emails    map[string]uuid.UUID
	members   map[memberKey]domain.Membership
	processes map[uuid.UUID]domain.Process
	events    map[uuid.UUID][]domain.Event // by process id, insertion order
	counters  map[counterKey]int64
	seq       int64

	now func() time.Time

	tenantRepo  *TenantRepo
	userRepo    *UserRepo
	memberRepo  *MembershipRepo
	processRepo *ProcessRepo
	eventRepo   *EventRepo
}

func New() *Store {
	s := &Store{
		tenants:   make(map[uuid.UUID]domain.Tenant),
		slugs:     make(map[string]uuid.UUID),
		users:     make(map[uuid.UUID]domain.User),
		emails:    make(map[string]uuid.UUID),
		members:   make(map[memberKey]domain.Membership),
		processes: make(map[uuid.UUID]domain.Process),
		events:    make(map[uuid.UUID][]domain.Event),
		counters:  make(map[counterKey]int64),
		now:       time.Now,
	}
	s.tenantRepo = &TenantRepo{s: s}
	s.userRepo = &UserRepo{s: s}
	s.memberRepo = &MembershipRepo{s: s}
	s.processRepo = &ProcessRepo{s: s}
	s.eventRepo = &EventRepo{s: s}
	return s
}

func (s *Store) Tenants() domain.TenantRepository         { return s.tenantRepo }
func (s *Store) Users() domain.UserRepository             { return s.userRepo }
func (s *Store) Memberships() domain.MembershipRepository { return s.memberRepo }
func (s *Store) Processes() domain.ProcessRepository      { return s.processRepo }
func (s *Store) Events() domain.EventRepository           { return s.eventRepo }

// appendEventLocked stores ev; the caller holds s.mu for writing.
func (s *Store) appendEventLocked(ev *domain.Event) {
	s.seq++
	ev.Seq = s.seq
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	s.events[ev.ProcessID] = append(s.events[ev.ProcessID], *ev)
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneProcess(p domain.Process) *domain.Process {
	p.Assignee = copyUUID(p.Assignee)
	p.ClientUserID = copyUUID(p.ClientUserID)
	return &p
}
