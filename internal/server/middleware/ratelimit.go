package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gosuda/sgi/internal/metrics"
)

const (
	limiterSweepEvery = 10 * time.Minute
	limiterIdleAfter  = 30 * time.Minute
)

type bucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// buckets holds one token bucket per caller key. Idle buckets are swept until
// ctx is done.
type buckets struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*bucket
}

func newBuckets(ctx context.Context, requestsPerSecond float64, burst int) *buckets {
	b := &buckets{
		rps:     rate.Limit(requestsPerSecond),
		burst:   burst,
		entries: make(map[string]*bucket),
	}
	go b.sweep(ctx)
	return b
}

func (b *buckets) sweep(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-limiterIdleAfter)
			b.mu.Lock()
			for key, e := range b.entries {
				if e.lastAccess.Before(cutoff) {
					delete(b.entries, key)
				}
			}
			b.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

func (b *buckets) allow(key string) bool {
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		e = &bucket{limiter: rate.NewLimiter(b.rps, b.burst)}
		b.entries[key] = e
	}
	e.lastAccess = time.Now()
	b.mu.Unlock()

	return e.limiter.Allow()
}

func reject(w http.ResponseWriter, scope string) {
	metrics.RecordRejection("rate_limit", scope)
	writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// RateLimitByIP limits unauthenticated endpoints per client address. Chain it
// after chi's RealIP so proxied requests are keyed by the real client.
func RateLimitByIP(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	b := newBuckets(ctx, requestsPerSecond, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if host, _, err := net.SplitHostPort(ip); err == nil {
				ip = host
			}
			if !b.allow("ip:" + ip) {
				reject(w, "ip")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit limits authenticated traffic. Tenant-bound callers share their
// tenant's bucket; callers that have not selected a tenant get one bucket
// per user. Requests without an identity pass through.
func RateLimit(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	b := newBuckets(ctx, requestsPerSecond, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, scope, ok := callerKey(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if !b.allow(key) {
				reject(w, scope)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(ctx context.Context) (key, scope string, ok bool) {
	if tid, found := TenantIDFromContext(ctx); found && tid != uuid.Nil {
		return "tenant:" + tid.String(), "tenant", true
	}
	if uid, found := UserIDFromContext(ctx); found && uid != uuid.Nil {
		return "user:" + uid.String(), "user", true
	}
	return "", "", false
}
