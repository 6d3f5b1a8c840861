package authcore

import (
	"context"
	"time"
)

// CredentialStore is the persistence boundary for account records. All
// mutations happen through Service methods; implementations must perform
// counter updates atomically at the row level (a single statement, not an
// application-side read-modify-write) so concurrent failed logins cannot
// under-count the lockout threshold.
//
// Lookups return ErrNotFound for a missing row; any other error is
// treated as an infrastructure failure.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	FindByID(ctx context.Context, id string) (*Credential, error)
	Create(ctx context.Context, c *Credential) error
	UpdateProfile(ctx context.Context, id, name, department string) error
	// IncrementFailedAttempts adds one to the counter and returns the
	// new value.
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	// ResetFailedAttempts zeroes the counter and clears any lock expiry.
	ResetFailedAttempts(ctx context.Context, id string) error
	LockUntil(ctx context.Context, id string, until time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// TouchLogin stamps the last successful login time.
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// RefreshTokenStore is the persistence boundary for refresh-token
// records.
type RefreshTokenStore interface {
	Create(ctx context.Context, t *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllForCredential(ctx context.Context, credentialID string, at time.Time) (int64, error)
	// Rotate marks the old record revoked and inserts the replacement as
	// one atomic step. A concurrent second rotation of the same record
	// must observe it as already consumed and receive ErrNotFound.
	Rotate(ctx context.Context, oldID string, at time.Time, replacement *RefreshToken) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
