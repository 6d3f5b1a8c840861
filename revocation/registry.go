// Package revocation maintains the denylist of invalidated access-token
// identifiers (jti).
//
// The registry is dual-layer: a process-local set answers the validation
// hot path with zero I/O, and an optional durable store carries
// revocations across restarts and instances. The in-memory layer trades
// perfect cross-instance consistency for latency: a token revoked on one
// instance stays valid on another until that instance consults the
// durable store or rebuilds its set. Deployments that need immediate
// cross-instance consistency set Config.CheckDurable to put the durable
// lookup on every validation.
package revocation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnavailable wraps durable-store I/O failures.
var ErrUnavailable = errors.New("revocation store unavailable")

// Store is the durable blacklist layer. Entries are safe to purge once
// their original token expiry has passed; an expired token cannot be
// replayed regardless of blacklist state.
type Store interface {
	Insert(ctx context.Context, jti string, expiresAt time.Time) error
	Exists(ctx context.Context, jti string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Config controls registry behavior.
type Config struct {
	// CheckDurable consults the durable store on every IsRevoked call,
	// trading a store round-trip per validation for immediate
	// cross-instance revocation visibility.
	CheckDurable bool
}

// Registry is the dual-layer jti denylist. The in-memory layer is guarded
// for high-read/low-write contention: reads happen on every authenticated
// request, writes only on logout.
type Registry struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> original token expiry

	store Store // nil = memory-only
	cfg   Config
}

// New returns a Registry backed by store. A nil store yields a
// memory-only registry.
func New(store Store, cfg Config) *Registry {
	return &Registry{
		revoked: make(map[string]time.Time),
		store:   store,
		cfg:     cfg,
	}
}

// Revoke adds jti to both layers. The in-memory write always takes effect
// first, so the revocation is visible locally even if the durable write
// fails; the durable error is still returned for the caller to handle.
// Revoking an already-revoked jti is a no-op.
func (r *Registry) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}

	r.mu.Lock()
	r.revoked[jti] = expiresAt
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	return r.store.Insert(ctx, jti, expiresAt)
}

// IsRevoked checks the in-memory set first and, when CheckDurable is set,
// falls through to the durable store on a miss.
func (r *Registry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}

	r.mu.RLock()
	_, hit := r.revoked[jti]
	r.mu.RUnlock()
	if hit {
		return true, nil
	}

	if !r.cfg.CheckDurable || r.store == nil {
		return false, nil
	}
	return r.store.Exists(ctx, jti)
}

// IsRevokedDurable bypasses the in-memory layer and asks the durable
// store directly, for callers that cannot trust a freshly started
// instance's local set.
func (r *Registry) IsRevokedDurable(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	if r.store == nil {
		r.mu.RLock()
		_, hit := r.revoked[jti]
		r.mu.RUnlock()
		return hit, nil
	}
	return r.store.Exists(ctx, jti)
}

// Clear empties only the in-memory layer. Durable entries are untouched.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.revoked = make(map[string]time.Time)
	r.mu.Unlock()
}

// PruneExpired drops entries whose original token expiry has passed, from
// both layers. Safe to run periodically.
func (r *Registry) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	for jti, exp := range r.revoked {
		if !exp.After(now) {
			delete(r.revoked, jti)
		}
	}
	r.mu.Unlock()

	if r.store == nil {
		return 0, nil
	}
	return r.store.DeleteExpired(ctx, now)
}

// Len reports the size of the in-memory layer.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.revoked)
}
