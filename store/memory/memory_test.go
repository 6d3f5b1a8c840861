package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arkivist/authcore"
)

func TestCredentialLifecycle(t *testing.T) {
	ctx := context.Background()
	creds := New().Credentials()

	cred := &authcore.Credential{
		ID:     "01HZX0000000000000000000AA",
		Email:  "Alice@Example.com",
		Active: true,
	}
	if err := creds.Create(ctx, cred); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := creds.Create(ctx, &authcore.Credential{ID: "other", Email: "alice@example.com"}); !errors.Is(err, authcore.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	got, err := creds.FindByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.ID != cred.ID {
		t.Fatalf("found wrong credential %q", got.ID)
	}

	if _, err := creds.FindByID(ctx, "nope"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFindReturnsCopy(t *testing.T) {
	ctx := context.Background()
	creds := New().Credentials()

	if err := creds.Create(ctx, &authcore.Credential{ID: "id", Email: "a@example.com", Name: "before"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := creds.FindByID(ctx, "id")
	got.Name = "mutated"

	again, _ := creds.FindByID(ctx, "id")
	if again.Name != "before" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestIncrementFailedAttemptsIsAtomic(t *testing.T) {
	ctx := context.Background()
	creds := New().Credentials()
	if err := creds.Create(ctx, &authcore.Credential{ID: "id", Email: "a@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := creds.IncrementFailedAttempts(ctx, "id"); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := creds.FindByID(ctx, "id")
	if got.FailedAttempts != workers {
		t.Fatalf("expected %d failed attempts, got %d", workers, got.FailedAttempts)
	}
}

func TestResetClearsCounterAndLock(t *testing.T) {
	ctx := context.Background()
	creds := New().Credentials()
	if err := creds.Create(ctx, &authcore.Credential{ID: "id", Email: "a@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := creds.IncrementFailedAttempts(ctx, "id"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := creds.LockUntil(ctx, "id", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if err := creds.ResetFailedAttempts(ctx, "id"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, _ := creds.FindByID(ctx, "id")
	if got.FailedAttempts != 0 || got.LockedUntil != nil {
		t.Fatalf("expected clean slate, got attempts=%d locked=%v", got.FailedAttempts, got.LockedUntil)
	}
}

func TestRotateConsumesOldToken(t *testing.T) {
	ctx := context.Background()
	tokens := New().RefreshTokens()
	now := time.Now().UTC()

	old := &authcore.RefreshToken{ID: "old", CredentialID: "cred", TokenHash: "h1", ExpiresAt: now.Add(time.Hour)}
	if err := tokens.Create(ctx, old); err != nil {
		t.Fatalf("create: %v", err)
	}

	repl := &authcore.RefreshToken{ID: "new", CredentialID: "cred", TokenHash: "h2", ExpiresAt: now.Add(time.Hour)}
	if err := tokens.Rotate(ctx, "old", now, repl); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	// Second rotation of the same record must fail.
	again := &authcore.RefreshToken{ID: "new2", CredentialID: "cred", TokenHash: "h3", ExpiresAt: now.Add(time.Hour)}
	if err := tokens.Rotate(ctx, "old", now, again); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected not found on consumed token, got %v", err)
	}

	got, err := tokens.FindByHash(ctx, "h1")
	if err != nil {
		t.Fatalf("find old: %v", err)
	}
	if got.RevokedAt == nil {
		t.Fatal("old token should be revoked after rotation")
	}
	if _, err := tokens.FindByHash(ctx, "h2"); err != nil {
		t.Fatalf("replacement should exist: %v", err)
	}
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	ctx := context.Background()
	tokens := New().RefreshTokens()
	now := time.Now().UTC()

	if err := tokens.Create(ctx, &authcore.RefreshToken{ID: "old", CredentialID: "cred", TokenHash: "h0", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			repl := &authcore.RefreshToken{
				ID:           "new-" + string(rune('a'+i)),
				CredentialID: "cred",
				TokenHash:    "hash-" + string(rune('a'+i)),
				ExpiresAt:    now.Add(time.Hour),
			}
			errs <- tokens.Rotate(ctx, "old", now, repl)
		}(i)
	}
	wg.Wait()
	close(errs)

	var wins int
	for err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, authcore.ErrNotFound) {
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", wins)
	}
}

func TestRevokeAllForCredential(t *testing.T) {
	ctx := context.Background()
	tokens := New().RefreshTokens()
	now := time.Now().UTC()

	for _, id := range []string{"a", "b", "c"} {
		owner := "cred"
		if id == "c" {
			owner = "other"
		}
		if err := tokens.Create(ctx, &authcore.RefreshToken{ID: id, CredentialID: owner, TokenHash: "h" + id, ExpiresAt: now.Add(time.Hour)}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	n, err := tokens.RevokeAllForCredential(ctx, "cred", now)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revocations, got %d", n)
	}

	other, _ := tokens.FindByHash(ctx, "hc")
	if other.RevokedAt != nil {
		t.Fatal("other credential's token must stay live")
	}
}

func TestDeleteExpiredTokens(t *testing.T) {
	ctx := context.Background()
	tokens := New().RefreshTokens()
	now := time.Now().UTC()

	if err := tokens.Create(ctx, &authcore.RefreshToken{ID: "live", TokenHash: "h1", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tokens.Create(ctx, &authcore.RefreshToken{ID: "dead", TokenHash: "h2", ExpiresAt: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := tokens.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deletion, got %d", n)
	}
	if _, err := tokens.FindByHash(ctx, "h2"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected expired token gone, got %v", err)
	}
	if _, err := tokens.FindByHash(ctx, "h1"); err != nil {
		t.Fatalf("live token should remain: %v", err)
	}
}

func TestRevocationStore(t *testing.T) {
	ctx := context.Background()
	rs := New().Revocations()
	now := time.Now()

	if err := rs.Insert(ctx, "jti-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := rs.Insert(ctx, "jti-2", now.Add(-time.Minute)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if ok, _ := rs.Exists(ctx, "jti-1"); !ok {
		t.Fatal("expected live entry to exist")
	}
	if ok, _ := rs.Exists(ctx, "jti-2"); ok {
		t.Fatal("entry past its token expiry must not report revoked")
	}

	n, err := rs.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", n)
	}
}
