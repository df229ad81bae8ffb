// Package session holds resolved tenant contexts for signed-in users and the
// subscription contract for session changes. A Registry is explicit state:
// it is constructed once and passed to whoever needs it.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/metrics"
)

// Channel is the bus channel carrying session changes between replicas.
const Channel = "sgi:session"

type Kind string

const (
	KindSignedIn          Kind = "signed_in"
	KindSignedOut         Kind = "signed_out"
	KindTenantSelected    Kind = "tenant_selected"
	KindRoleChanged       Kind = "role_changed"
	KindMembershipRemoved Kind = "membership_removed"
)

// Change describes something that happened to a user's session. TenantID is
// uuid.Nil for changes that are not bound to one tenant.
type Change struct {
	Kind     Kind        `json:"kind"`
	UserID   uuid.UUID   `json:"user_id"`
	TenantID uuid.UUID   `json:"tenant_id"`
	Role     domain.Role `json:"role,omitempty"`
	At       time.Time   `json:"at"`
	Origin   string      `json:"origin"`
}

// Bus moves encoded changes between replicas.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

type cacheKey struct {
	userID   uuid.UUID
	tenantID uuid.UUID
}

type cacheEntry struct {
	tc      domain.TenantContext
	expires time.Time
}

type Registry struct {
	bus       Bus
	origin    string
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	entries   map[cacheKey]cacheEntry
	lookups   map[cacheKey]*lookup
	signedOut map[uuid.UUID]time.Time
	subs      map[int]func(Change)
	nextSub   int
}

// NewRegistry creates a registry caching contexts for ttl. Sign-out cut-offs
// are kept for retention, which should cover the longest token lifetime. A
// nil bus keeps changes local to this process.
func NewRegistry(bus Bus, ttl, retention time.Duration) *Registry {
	return &Registry{
		bus:       bus,
		origin:    uuid.NewString(),
		ttl:       ttl,
		retention: retention,
		now:       time.Now,
		entries:   make(map[cacheKey]cacheEntry),
		lookups:   make(map[cacheKey]*lookup),
		signedOut: make(map[uuid.UUID]time.Time),
		subs:      make(map[int]func(Change)),
	}
}

// Lookup returns a cached, unexpired context.
func (r *Registry) Lookup(userID, tenantID uuid.UUID) (domain.TenantContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[cacheKey{userID, tenantID}]
	if !ok || !r.now().Before(e.expires) {
		return domain.TenantContext{}, false
	}
	return e.tc, true
}

func (r *Registry) Store(tc domain.TenantContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeLocked(tc)
}

func (r *Registry) storeLocked(tc domain.TenantContext) {
	if r.ttl <= 0 {
		return
	}
	r.entries[cacheKey{tc.UserID, tc.TenantID}] = cacheEntry{tc: tc, expires: r.now().Add(r.ttl)}
}

// lookup counts invalidations of a key while contexts for it are being
// resolved.
type lookup struct {
	gen  uint64
	refs int
}

// Ticket identifies a context lookup started with BeginLookup.
type Ticket struct {
	key cacheKey
	gen uint64
}

// BeginLookup marks a lookup of the user's context in tenantID as in flight.
// Every BeginLookup must be paired with EndLookup. A Nil tenantID is
// invalidated by changes to any of the user's tenants.
func (r *Registry) BeginLookup(userID, tenantID uuid.UUID) Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cacheKey{userID, tenantID}
	l, ok := r.lookups[key]
	if !ok {
		l = &lookup{}
		r.lookups[key] = l
	}
	l.refs++
	return Ticket{key: key, gen: l.gen}
}

// EndLookup finishes t and caches tc unless a change invalidated the key
// after BeginLookup. It reports whether tc was cached. A nil tc only ends the
// lookup.
func (r *Registry) EndLookup(t Ticket, tc *domain.TenantContext) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lookups[t.key]
	if !ok {
		return false
	}
	current := l.gen == t.gen
	if l.refs--; l.refs <= 0 {
		delete(r.lookups, t.key)
	}
	if !current || tc == nil || r.ttl <= 0 {
		return false
	}
	r.storeLocked(*tc)
	return true
}

// invalidateLookupsLocked bumps in-flight lookups of userID. A Nil tenantID
// matches every tenant of the user.
func (r *Registry) invalidateLookupsLocked(userID, tenantID uuid.UUID) {
	for k, l := range r.lookups {
		if k.userID != userID {
			continue
		}
		if tenantID == uuid.Nil || k.tenantID == uuid.Nil || k.tenantID == tenantID {
			l.gen++
		}
	}
}

// Active reports whether a token issued at issuedAt for userID is still
// acceptable, i.e. the user has not signed out since.
func (r *Registry) Active(userID uuid.UUID, issuedAt time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff, ok := r.signedOut[userID]
	if !ok {
		return true
	}
	return !issuedAt.Before(cutoff)
}

// Subscribe registers fn for every change applied to this registry, local or
// remote. fn runs on the publishing goroutine and must not block.
func (r *Registry) Subscribe(fn func(Change)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}

// Publish applies c locally and forwards it to the bus. Bus failures are
// logged; the local state is authoritative for this replica.
func (r *Registry) Publish(ctx context.Context, c Change) {
	if c.At.IsZero() {
		c.At = r.now()
	}
	c.Origin = r.origin
	r.apply(c, false)

	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		log.Error().Err(err).Str("kind", string(c.Kind)).Msg("session: encode change")
		return
	}
	if err := r.bus.Publish(ctx, Channel, payload); err != nil {
		log.Warn().Err(err).Str("kind", string(c.Kind)).Msg("session: forward change to bus")
	}
}

// Run applies changes published by other replicas until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	if r.bus == nil {
		<-ctx.Done()
		return nil
	}

	ch, cleanup, err := r.bus.Subscribe(ctx, Channel)
	if err != nil {
		return fmt.Errorf("session.Registry.Run: %w", err)
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var c Change
			if err := json.Unmarshal(payload, &c); err != nil {
				log.Warn().Err(err).Msg("session: drop malformed change")
				continue
			}
			if c.Origin == r.origin {
				continue
			}
			r.apply(c, true)
		}
	}
}

func (r *Registry) apply(c Change, remote bool) {
	r.mu.Lock()
	switch c.Kind {
	case KindSignedOut:
		for k := range r.entries {
			if k.userID == c.UserID {
				delete(r.entries, k)
			}
		}
		r.invalidateLookupsLocked(c.UserID, uuid.Nil)
		cutoff := c.At
		if prev, ok := r.signedOut[c.UserID]; !ok || cutoff.After(prev) {
			r.signedOut[c.UserID] = cutoff
		}
		r.pruneLocked()
	case KindRoleChanged, KindMembershipRemoved:
		delete(r.entries, cacheKey{c.UserID, c.TenantID})
		r.invalidateLookupsLocked(c.UserID, c.TenantID)
	}

	subs := make([]func(Change), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	metrics.RecordSessionChange(string(c.Kind), remote)
	log.Debug().
		Str("kind", string(c.Kind)).
		Str("user_id", c.UserID.String()).
		Bool("remote", remote).
		Msg("session change")

	for _, fn := range subs {
		fn(c)
	}
}

func (r *Registry) pruneLocked() {
	if r.retention <= 0 {
		return
	}
	limit := r.now().Add(-r.retention)
	for id, at := range r.signedOut {
		if at.Before(limit) {
			delete(r.signedOut, id)
		}
	}
}
