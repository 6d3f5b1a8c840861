package authcore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arkivist/authcore/audit"
	"github.com/arkivist/authcore/internal/ids"
	"github.com/arkivist/authcore/internal/secrets"
)

// Login verifies the credential and, on success, issues an access token
// and a fresh single-use refresh token.
//
// The returned error carries the true failure reason for the audit trail
// and operators; it must go through Sanitize before being shown to the
// caller so that a missing account, a wrong password and a locked
// account are indistinguishable from outside.
func (s *Service) Login(ctx context.Context, email, plaintext string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := s.now().UTC()

	if s.throttle != nil {
		key := email + "|" + ClientIPFromContext(ctx)
		if !s.throttle.Allow(key) {
			s.metrics.LoginThrottled()
			s.emit(ctx, audit.Event{
				EventType: audit.EventLoginThrottled,
				Email:     email,
				Error:     ErrLoginThrottled.Error(),
			})
			return nil, ErrLoginThrottled
		}
	}

	cred, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			// Absence collapses to invalid credentials; only the audit
			// trail records the difference.
			s.metrics.Login("failure")
			s.emit(ctx, audit.Event{
				EventType: audit.EventLogin,
				Email:     email,
				Error:     ErrInvalidCredentials.Error(),
				Metadata:  map[string]string{"reason": "unknown_email"},
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !cred.Active {
		s.metrics.Login("failure")
		s.emit(ctx, audit.Event{
			EventType: audit.EventLogin,
			Subject:   cred.ID,
			Email:     email,
			Error:     ErrAccountDisabled.Error(),
			Metadata:  map[string]string{"reason": "account_disabled"},
		})
		return nil, ErrAccountDisabled
	}

	if cred.Locked(now) {
		s.metrics.Login("failure")
		s.emit(ctx, audit.Event{
			EventType: audit.EventLogin,
			Subject:   cred.ID,
			Email:     email,
			Error:     ErrAccountLocked.Error(),
			Metadata: map[string]string{
				"reason":       "account_locked",
				"locked_until": cred.LockedUntil.UTC().Format(time.RFC3339),
			},
		})
		return nil, fmt.Errorf("%w until %s", ErrAccountLocked, cred.LockedUntil.UTC().Format(time.RFC3339))
	}

	if s.cfg.RequireVerifiedEmail && !cred.EmailVerified {
		s.metrics.Login("failure")
		s.emit(ctx, audit.Event{
			EventType: audit.EventLogin,
			Subject:   cred.ID,
			Email:     email,
			Error:     ErrInvalidCredentials.Error(),
			Metadata:  map[string]string{"reason": "email_unverified"},
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(plaintext, cred.PasswordHash)
	if err != nil {
		// A malformed stored record is an internal fault, never an
		// authentication outcome.
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		return nil, s.failedLogin(ctx, cred, now)
	}

	if s.cfg.RehashOnLogin {
		if needs, err := s.hasher.NeedsRehash(cred.PasswordHash); err == nil && needs {
			if upgraded, err := s.hasher.Hash(plaintext); err == nil {
				if err := s.creds.UpdatePasswordHash(ctx, cred.ID, upgraded); err != nil {
					s.warn("authcore: password rehash update failed: %v", err)
				}
			} else {
				s.warn("authcore: password rehash generation failed: %v", err)
			}
		}
	}
	if cred.FailedAttempts > 0 || cred.LockedUntil != nil {
		if err := s.creds.ResetFailedAttempts(ctx, cred.ID); err != nil {
			s.warn("authcore: failed-attempt reset failed for %s: %v", cred.ID, err)
		}
	}
	if err := s.creds.TouchLogin(ctx, cred.ID, now); err != nil {
		s.warn("authcore: last-login stamp failed for %s: %v", cred.ID, err)
	}

	session, err := s.issueSession(ctx, cred, now)
	if err != nil {
		return nil, err
	}

	s.metrics.Login("success")
	s.emit(ctx, audit.Event{
		EventType: audit.EventLogin,
		Subject:   cred.ID,
		Email:     email,
		TokenID:   session.Principal.TokenID,
		Success:   true,
	})
	return session, nil
}

// failedLogin increments the per-credential counter atomically and locks
// the account when the threshold is reached. The outward signal is the
// same generic error either way so callers cannot observe the lockout
// transition.
func (s *Service) failedLogin(ctx context.Context, cred *Credential, now time.Time) error {
	count, err := s.creds.IncrementFailedAttempts(ctx, cred.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	meta := map[string]string{
		"reason":          "password_mismatch",
		"failed_attempts": strconv.Itoa(count),
	}

	if count >= s.cfg.MaxFailedAttempts {
		until := now.Add(s.cfg.LockoutDuration)
		if err := s.creds.LockUntil(ctx, cred.ID, until); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		s.metrics.Lockout()
		s.emit(ctx, audit.Event{
			EventType: audit.EventAccountLocked,
			Subject:   cred.ID,
			Email:     cred.Email,
			Error:     "failed attempts threshold reached",
			Metadata: map[string]string{
				"failed_attempts": strconv.Itoa(count),
				"locked_until":    until.UTC().Format(time.RFC3339),
			},
		})
	}

	s.metrics.Login("failure")
	s.emit(ctx, audit.Event{
		EventType: audit.EventLogin,
		Subject:   cred.ID,
		Email:     cred.Email,
		Error:     ErrInvalidCredentials.Error(),
		Metadata:  meta,
	})
	return ErrInvalidCredentials
}

// issueSession signs an access token and creates a refresh-token record
// for cred.
func (s *Service) issueSession(ctx context.Context, cred *Credential, now time.Time) (*Session, error) {
	access, claims, err := s.issuer.Issue(cred.ID, cred.Name, cred.Email, cred.Role.String(), cred.Department)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	secret, err := secrets.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	record := &RefreshToken{
		ID:           ids.New(),
		CredentialID: cred.ID,
		TokenHash:    secrets.HashString(secret),
		UserAgent:    UserAgentFromContext(ctx),
		IP:           ClientIPFromContext(ctx),
		ExpiresAt:    now.Add(s.cfg.RefreshTTL),
		CreatedAt:    now,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	refresh, err := secrets.Encode(record.ID, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	principal := PrincipalFromCredential(cred)
	principal.TokenID = claims.ID

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		Principal:    principal,
	}, nil
}
