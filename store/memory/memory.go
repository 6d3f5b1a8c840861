// Package memory provides mutex-guarded in-memory implementations of
// the persistence interfaces. Meant for tests and single-process
// deployments; data does not survive a restart.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/arkivist/authcore"
	"github.com/arkivist/authcore/revocation"
)

// Store holds all state behind one lock and hands out typed views:
// Credentials, RefreshTokens and Revocations. The views share the lock,
// so cross-store operations in tests see a consistent picture.
type Store struct {
	mu      sync.Mutex
	creds   map[string]*authcore.Credential // by id
	byEmail map[string]string               // email -> id
	tokens  map[string]*authcore.RefreshToken
	byHash  map[string]string // token hash -> id
	revoked map[string]time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		creds:   make(map[string]*authcore.Credential),
		byEmail: make(map[string]string),
		tokens:  make(map[string]*authcore.RefreshToken),
		byHash:  make(map[string]string),
		revoked: make(map[string]time.Time),
	}
}

// Credentials returns the authcore.CredentialStore view.
func (s *Store) Credentials() *CredentialStore { return &CredentialStore{s: s} }

// RefreshTokens returns the authcore.RefreshTokenStore view.
func (s *Store) RefreshTokens() *RefreshTokenStore { return &RefreshTokenStore{s: s} }

// Revocations returns the revocation.Store view.
func (s *Store) Revocations() *RevocationStore { return &RevocationStore{s: s} }

// CredentialStore implements authcore.CredentialStore over the shared
// maps.
type CredentialStore struct {
	s *Store
}

var _ authcore.CredentialStore = (*CredentialStore)(nil)

func cloneCredential(c *authcore.Credential) *authcore.Credential {
	out := *c
	if c.LockedUntil != nil {
		t := *c.LockedUntil
		out.LockedUntil = &t
	}
	if c.LastLoginAt != nil {
		t := *c.LastLoginAt
		out.LastLoginAt = &t
	}
	if c.PasswordChangedAt != nil {
		t := *c.PasswordChangedAt
		out.PasswordChangedAt = &t
	}
	return &out
}

func (cs *CredentialStore) FindByEmail(ctx context.Context, email string) (*authcore.Credential, error) {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	id, ok := cs.s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	return cloneCredential(cs.s.creds[id]), nil
}

func (cs *CredentialStore) FindByID(ctx context.Context, id string) (*authcore.Credential, error) {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	c, ok := cs.s.creds[id]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	return cloneCredential(c), nil
}

func (cs *CredentialStore) Create(ctx context.Context, c *authcore.Credential) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	email := strings.ToLower(c.Email)
	if _, ok := cs.s.byEmail[email]; ok {
		return authcore.ErrDuplicateEmail
	}
	cs.s.creds[c.ID] = cloneCredential(c)
	cs.s.byEmail[email] = c.ID
	return nil
}

func (cs *CredentialStore) UpdateProfile(ctx context.Context, id, name, department string) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	c, ok := cs.s.creds[id]
	if !ok {
		return authcore.ErrNotFound
	}
	c.Name = name
	c.Department = department
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (cs *CredentialStore) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	c, ok := cs.s.creds[id]
	if !ok {
		return 0, authcore.ErrNotFound
	}
	c.FailedAttempts++
	return c.FailedAttempts, nil
}

func (cs *CredentialStore) ResetFailedAttempts(ctx context.Context, id string) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	c, ok := cs.s.creds[id]
	if !ok {
		return authcore.ErrNotFound
	}
	c.FailedAttempts = 0
	c.LockedUntil = nil
	return nil
}

func (cs *CredentialStore) LockUntil(ctx context.Context, id string, until time.Time) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	c, ok := cs.s.creds[id]
	if !ok {
		return authcore.ErrNotFound
	}
	c.LockedUntil = &until
	return nil
}

func (cs *CredentialStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	c, ok := cs.s.creds[id]
	if !ok {
		return authcore.ErrNotFound
	}
	now := time.Now().UTC()
	c.PasswordHash = hash
	c.PasswordChangedAt = &now
	c.UpdatedAt = now
	return nil
}

func (cs *CredentialStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	c, ok := cs.s.creds[id]
	if !ok {
		return authcore.ErrNotFound
	}
	at = at.UTC()
	c.LastLoginAt = &at
	return nil
}

// SetActive flips the account's active flag. Not part of the interface;
// a hook for operator tooling and tests.
func (cs *CredentialStore) SetActive(id string, active bool) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	c, ok := cs.s.creds[id]
	if !ok {
		return authcore.ErrNotFound
	}
	c.Active = active
	return nil
}

// SetEmailVerified marks the account's email as verified.
func (cs *CredentialStore) SetEmailVerified(id string, verified bool) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	c, ok := cs.s.creds[id]
	if !ok {
		return authcore.ErrNotFound
	}
	c.EmailVerified = verified
	return nil
}

// RefreshTokenStore implements authcore.RefreshTokenStore over the
// shared maps.
type RefreshTokenStore struct {
	s *Store
}

var _ authcore.RefreshTokenStore = (*RefreshTokenStore)(nil)

func cloneToken(t *authcore.RefreshToken) *authcore.RefreshToken {
	out := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		out.RevokedAt = &at
	}
	return &out
}

func (ts *RefreshTokenStore) Create(ctx context.Context, t *authcore.RefreshToken) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	ts.s.tokens[t.ID] = cloneToken(t)
	ts.s.byHash[t.TokenHash] = t.ID
	return nil
}

func (ts *RefreshTokenStore) FindByHash(ctx context.Context, tokenHash string) (*authcore.RefreshToken, error) {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	id, ok := ts.s.byHash[tokenHash]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	return cloneToken(ts.s.tokens[id]), nil
}

func (ts *RefreshTokenStore) Revoke(ctx context.Context, id string, at time.Time) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	t, ok := ts.s.tokens[id]
	if !ok || t.RevokedAt != nil {
		return authcore.ErrNotFound
	}
	t.RevokedAt = &at
	return nil
}

func (ts *RefreshTokenStore) RevokeAllForCredential(ctx context.Context, credentialID string, at time.Time) (int64, error) {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	var n int64
	for _, t := range ts.s.tokens {
		if t.CredentialID == credentialID && t.RevokedAt == nil {
			revokedAt := at
			t.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

// Rotate revokes the old record and inserts the replacement under one
// lock acquisition, so a concurrent second rotation of the same record
// observes it as consumed and gets ErrNotFound.
func (ts *RefreshTokenStore) Rotate(ctx context.Context, oldID string, at time.Time, replacement *authcore.RefreshToken) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	old, ok := ts.s.tokens[oldID]
	if !ok || old.RevokedAt != nil {
		return authcore.ErrNotFound
	}
	old.RevokedAt = &at

	ts.s.tokens[replacement.ID] = cloneToken(replacement)
	ts.s.byHash[replacement.TokenHash] = replacement.ID
	return nil
}

func (ts *RefreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	var n int64
	for id, t := range ts.s.tokens {
		if !t.ExpiresAt.After(now) {
			delete(ts.s.byHash, t.TokenHash)
			delete(ts.s.tokens, id)
			n++
		}
	}
	return n, nil
}

// RevocationStore implements revocation.Store over the shared maps.
type RevocationStore struct {
	s *Store
}

var _ revocation.Store = (*RevocationStore)(nil)

func (rs *RevocationStore) Insert(ctx context.Context, jti string, expiresAt time.Time) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()

	rs.s.revoked[jti] = expiresAt
	return nil
}

func (rs *RevocationStore) Exists(ctx context.Context, jti string) (bool, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()

	exp, ok := rs.s.revoked[jti]
	return ok && exp.After(time.Now()), nil
}

func (rs *RevocationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()

	var n int64
	for jti, exp := range rs.s.revoked {
		if !exp.After(now) {
			delete(rs.s.revoked, jti)
			n++
		}
	}
	return n, nil
}
