package api

import (
	"sync"
	"time"

	"classbook/internal/config"

	"golang.org/x/time/rate"
)

const (
	defaultBurst  = 5
	bucketIdleTTL = 10 * time.Minute
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps a token bucket per client key (IP for HTTP, account for
// gRPC). Buckets idle longer than bucketIdleTTL are dropped on the next sweep.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(cfg.RPS),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *rateLimiter) allow(key string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	if now.Sub(l.lastSweep) > bucketIdleTTL {
		l.sweep(now)
	}
	l.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// sweep must run under l.mu.
func (l *rateLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > bucketIdleTTL {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}
