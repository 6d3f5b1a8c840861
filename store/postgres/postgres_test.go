package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/arkivist/authcore"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewFromDB(db), mock
}

func TestFindByIDScansCredential(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	locked := now.Add(15 * time.Minute)

	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "name", "role", "department", "active", "email_verified",
		"failed_attempts", "locked_until", "last_login_at", "password_changed_at", "created_at", "updated_at",
	}).AddRow("cred-1", "alice@example.com", "$argon2id$...", "Alice", "editor", "ops", true, true,
		3, locked, nil, nil, now, now)

	mock.ExpectQuery("select (.+) from credentials where id =").
		WithArgs("cred-1").
		WillReturnRows(rows)

	got, err := store.Credentials().FindByID(context.Background(), "cred-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Role != authcore.RoleEditor {
		t.Fatalf("unexpected role %v", got.Role)
	}
	if got.LockedUntil == nil || !got.LockedUntil.Equal(locked) {
		t.Fatalf("unexpected locked_until %v", got.LockedUntil)
	}
	if got.FailedAttempts != 3 {
		t.Fatalf("unexpected failed attempts %d", got.FailedAttempts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from credentials where email =").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Credentials().FindByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIncrementFailedAttemptsReturnsNewCount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("update credentials set failed_attempts = failed_attempts \\+ 1").
		WithArgs("cred-1").
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts"}).AddRow(5))

	count, err := store.Credentials().IncrementFailedAttempts(context.Background(), "cred-1")
	if err != nil {
		t.Fatalf("IncrementFailedAttempts: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected count 5, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResetFailedAttemptsMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update credentials set failed_attempts = 0, locked_until = null").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Credentials().ResetFailedAttempts(context.Background(), "ghost")
	if !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRotateConsumesAndInserts(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	repl := &authcore.RefreshToken{
		ID:           "new-id",
		CredentialID: "cred-1",
		TokenHash:    "hash",
		ExpiresAt:    now.Add(time.Hour),
		CreatedAt:    now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs("old-id", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs(repl.ID, repl.CredentialID, repl.TokenHash, repl.UserAgent, repl.IP, repl.ExpiresAt, repl.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.RefreshTokens().Rotate(context.Background(), "old-id", now, repl); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRotateConsumedTokenRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs("old-id", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.RefreshTokens().Rotate(context.Background(), "old-id", now, &authcore.RefreshToken{ID: "x"})
	if !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on consumed token, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevokeAllForCredentialCounts(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs("cred-1", now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.RefreshTokens().RevokeAllForCredential(context.Background(), "cred-1", now)
	if err != nil {
		t.Fatalf("RevokeAllForCredential: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 revocations, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevocationExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select 1 from revoked_access_tokens").
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select 1 from revoked_access_tokens").
		WithArgs("jti-2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	revoked, err := store.Revocations().Exists(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !revoked {
		t.Fatal("expected jti-1 to be revoked")
	}

	revoked, err = store.Revocations().Exists(context.Background(), "jti-2")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if revoked {
		t.Fatal("expected jti-2 to be unknown")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevocationInsertIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectExec("insert into revoked_access_tokens").
		WithArgs("jti-1", exp).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into revoked_access_tokens").
		WithArgs("jti-1", exp).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Revocations().Insert(context.Background(), "jti-1", exp); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Revocations().Insert(context.Background(), "jti-1", exp); err != nil {
		t.Fatalf("second Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
