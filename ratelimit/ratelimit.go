// Package ratelimit provides a per-key token-bucket limiter used to
// throttle login attempts by identifier and client IP ahead of the
// expensive password verification.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdle = 10 * time.Minute

// PerKey hands out one token bucket per key and evicts buckets that have
// been idle long enough to be full again.
type PerKey struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns a limiter allowing limit events per second with the given
// burst for each distinct key.
func New(limit rate.Limit, burst int) *PerKey {
	if burst < 1 {
		burst = 1
	}
	return &PerKey{
		buckets: make(map[string]*bucket),
		limit:   limit,
		burst:   burst,
		idle:    defaultIdle,
		now:     time.Now,
	}
}

// Allow reports whether an event for key may proceed now.
func (p *PerKey) Allow(key string) bool {
	now := p.now()

	p.mu.Lock()
	b, ok := p.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.buckets[key] = b
	}
	b.lastSeen = now
	p.evictIdleLocked(now)
	p.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Len reports the number of live buckets.
func (p *PerKey) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}

func (p *PerKey) evictIdleLocked(now time.Time) {
	if len(p.buckets) < 1024 {
		return
	}
	for key, b := range p.buckets {
		if now.Sub(b.lastSeen) > p.idle {
			delete(p.buckets, key)
		}
	}
}
