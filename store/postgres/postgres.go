// Package postgres implements the persistence interfaces on PostgreSQL
// via database/sql and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/arkivist/authcore"
	"github.com/arkivist/authcore/revocation"
)

// Schema is the DDL for the three tables. Applied by EnsureSchema;
// exposed for deployments that manage migrations themselves.
const Schema = `
create table if not exists credentials (
	id                  text primary key,
	email               text not null unique,
	password_hash       text not null,
	name                text not null default '',
	role                text not null default 'viewer',
	department          text not null default '',
	active              boolean not null default true,
	email_verified      boolean not null default false,
	failed_attempts     integer not null default 0,
	locked_until        timestamptz,
	last_login_at       timestamptz,
	password_changed_at timestamptz,
	created_at          timestamptz not null default now(),
	updated_at          timestamptz not null default now()
);

create table if not exists refresh_tokens (
	id            text primary key,
	credential_id text not null references credentials(id) on delete cascade,
	token_hash    text not null unique,
	user_agent    text not null default '',
	ip            text not null default '',
	expires_at    timestamptz not null,
	created_at    timestamptz not null default now(),
	revoked_at    timestamptz
);
create index if not exists refresh_tokens_credential_idx on refresh_tokens(credential_id);

create table if not exists revoked_access_tokens (
	jti        text primary key,
	expires_at timestamptz not null
);
`

// Store owns the connection pool and hands out typed views.
type Store struct {
	db *sql.DB
}

// Open dials dsn with pool limits suited to an auth workload: many
// short point queries, no long scans.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing pool; the caller keeps ownership.
func NewFromDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// EnsureSchema applies Schema. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Credentials returns the authcore.CredentialStore view.
func (s *Store) Credentials() *CredentialStore { return &CredentialStore{db: s.db} }

// RefreshTokens returns the authcore.RefreshTokenStore view.
func (s *Store) RefreshTokens() *RefreshTokenStore { return &RefreshTokenStore{db: s.db} }

// Revocations returns the revocation.Store view.
func (s *Store) Revocations() *RevocationStore { return &RevocationStore{db: s.db} }

// CredentialStore implements authcore.CredentialStore.
type CredentialStore struct {
	db *sql.DB
}

var _ authcore.CredentialStore = (*CredentialStore)(nil)

const credentialColumns = `id, email, password_hash, name, role, department, active, email_verified,
	failed_attempts, locked_until, last_login_at, password_changed_at, created_at, updated_at`

func scanCredential(row *sql.Row) (*authcore.Credential, error) {
	var (
		c        authcore.Credential
		role     string
		locked   sql.NullTime
		lastIn   sql.NullTime
		pwChange sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Email, &c.PasswordHash, &c.Name, &role, &c.Department,
		&c.Active, &c.EmailVerified, &c.FailedAttempts, &locked, &lastIn, &pwChange,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Role, err = authcore.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("credential %s: %w", c.ID, err)
	}
	if locked.Valid {
		c.LockedUntil = &locked.Time
	}
	if lastIn.Valid {
		c.LastLoginAt = &lastIn.Time
	}
	if pwChange.Valid {
		c.PasswordChangedAt = &pwChange.Time
	}
	return &c, nil
}

func (cs *CredentialStore) FindByEmail(ctx context.Context, email string) (*authcore.Credential, error) {
	row := cs.db.QueryRowContext(ctx,
		`select `+credentialColumns+` from credentials where email = lower($1)`, email)
	return scanCredential(row)
}

func (cs *CredentialStore) FindByID(ctx context.Context, id string) (*authcore.Credential, error) {
	row := cs.db.QueryRowContext(ctx,
		`select `+credentialColumns+` from credentials where id = $1`, id)
	return scanCredential(row)
}

func (cs *CredentialStore) Create(ctx context.Context, c *authcore.Credential) error {
	_, err := cs.db.ExecContext(ctx, `
		insert into credentials (id, email, password_hash, name, role, department,
			active, email_verified, failed_attempts, created_at, updated_at)
		values ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.Email, c.PasswordHash, c.Name, c.Role.String(), c.Department,
		c.Active, c.EmailVerified, c.FailedAttempts, c.CreatedAt, c.UpdatedAt)
	return err
}

func (cs *CredentialStore) UpdateProfile(ctx context.Context, id, name, department string) error {
	return cs.exec(ctx, `
		update credentials set name = $2, department = $3, updated_at = now()
		where id = $1
	`, id, name, department)
}

// IncrementFailedAttempts bumps the counter in a single statement so
// concurrent failed logins cannot under-count.
func (cs *CredentialStore) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	var count int
	err := cs.db.QueryRowContext(ctx, `
		update credentials set failed_attempts = failed_attempts + 1, updated_at = now()
		where id = $1
		returning failed_attempts
	`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, authcore.ErrNotFound
	}
	return count, err
}

func (cs *CredentialStore) ResetFailedAttempts(ctx context.Context, id string) error {
	return cs.exec(ctx, `
		update credentials set failed_attempts = 0, locked_until = null, updated_at = now()
		where id = $1
	`, id)
}

func (cs *CredentialStore) LockUntil(ctx context.Context, id string, until time.Time) error {
	return cs.exec(ctx, `
		update credentials set locked_until = $2, updated_at = now()
		where id = $1
	`, id, until)
}

func (cs *CredentialStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return cs.exec(ctx, `
		update credentials
		set password_hash = $2, password_changed_at = now(), updated_at = now()
		where id = $1
	`, id, hash)
}

func (cs *CredentialStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return cs.exec(ctx, `
		update credentials set last_login_at = $2 where id = $1
	`, id, at)
}

func (cs *CredentialStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := cs.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

// RefreshTokenStore implements authcore.RefreshTokenStore.
type RefreshTokenStore struct {
	db *sql.DB
}

var _ authcore.RefreshTokenStore = (*RefreshTokenStore)(nil)

func (ts *RefreshTokenStore) Create(ctx context.Context, t *authcore.RefreshToken) error {
	_, err := ts.db.ExecContext(ctx, `
		insert into refresh_tokens (id, credential_id, token_hash, user_agent, ip, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.CredentialID, t.TokenHash, t.UserAgent, t.IP, t.ExpiresAt, t.CreatedAt)
	return err
}

func (ts *RefreshTokenStore) FindByHash(ctx context.Context, tokenHash string) (*authcore.RefreshToken, error) {
	var (
		t       authcore.RefreshToken
		revoked sql.NullTime
	)
	err := ts.db.QueryRowContext(ctx, `
		select id, credential_id, token_hash, user_agent, ip, expires_at, created_at, revoked_at
		from refresh_tokens where token_hash = $1
	`, tokenHash).Scan(&t.ID, &t.CredentialID, &t.TokenHash, &t.UserAgent, &t.IP,
		&t.ExpiresAt, &t.CreatedAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if revoked.Valid {
		t.RevokedAt = &revoked.Time
	}
	return &t, nil
}

func (ts *RefreshTokenStore) Revoke(ctx context.Context, id string, at time.Time) error {
	res, err := ts.db.ExecContext(ctx, `
		update refresh_tokens set revoked_at = $2
		where id = $1 and revoked_at is null
	`, id, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

func (ts *RefreshTokenStore) RevokeAllForCredential(ctx context.Context, credentialID string, at time.Time) (int64, error) {
	res, err := ts.db.ExecContext(ctx, `
		update refresh_tokens set revoked_at = $2
		where credential_id = $1 and revoked_at is null
	`, credentialID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Rotate consumes the old record and inserts the replacement in one
// transaction. The guarded update makes consumption race-free: whoever
// loses the race sees zero rows affected and gets ErrNotFound.
func (ts *RefreshTokenStore) Rotate(ctx context.Context, oldID string, at time.Time, replacement *authcore.RefreshToken) error {
	tx, err := ts.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update refresh_tokens set revoked_at = $2
		where id = $1 and revoked_at is null
	`, oldID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		insert into refresh_tokens (id, credential_id, token_hash, user_agent, ip, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, replacement.ID, replacement.CredentialID, replacement.TokenHash,
		replacement.UserAgent, replacement.IP, replacement.ExpiresAt, replacement.CreatedAt); err != nil {
		return err
	}

	return tx.Commit()
}

func (ts *RefreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := ts.db.ExecContext(ctx, `delete from refresh_tokens where expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RevocationStore implements revocation.Store on the
// revoked_access_tokens table.
type RevocationStore struct {
	db *sql.DB
}

var _ revocation.Store = (*RevocationStore)(nil)

func (rs *RevocationStore) Insert(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := rs.db.ExecContext(ctx, `
		insert into revoked_access_tokens (jti, expires_at)
		values ($1, $2) on conflict (jti) do nothing
	`, jti, expiresAt)
	return err
}

func (rs *RevocationStore) Exists(ctx context.Context, jti string) (bool, error) {
	var one int
	err := rs.db.QueryRowContext(ctx, `
		select 1 from revoked_access_tokens where jti = $1 and expires_at > now()
	`, jti).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (rs *RevocationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := rs.db.ExecContext(ctx, `delete from revoked_access_tokens where expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
