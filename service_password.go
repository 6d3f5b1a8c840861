package authcore

import (
	"context"
	"fmt"

	"github.com/arkivist/authcore/audit"
	"github.com/arkivist/authcore/password"
)

// ChangePassword verifies the current password, applies the strength
// policy to the new one, and rewrites the stored hash. All of the
// subject's refresh tokens are revoked so stolen sessions die with the
// old password.
func (s *Service) ChangePassword(ctx context.Context, subject, current, next string) error {
	cred, err := s.creds.FindByID(ctx, subject)
	if err != nil {
		if IsNotFound(err) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := s.hasher.Verify(current, cred.PasswordHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		s.emit(ctx, audit.Event{
			EventType: audit.EventPasswordChange,
			Subject:   cred.ID,
			Email:     cred.Email,
			Error:     ErrInvalidCredentials.Error(),
			Metadata:  map[string]string{"reason": "current_password_mismatch"},
		})
		return ErrInvalidCredentials
	}

	if err := password.CheckStrength(next); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	if current == next {
		return ErrPasswordReuse
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if err := s.creds.UpdatePasswordHash(ctx, cred.ID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if n, err := s.tokens.RevokeAllForCredential(ctx, cred.ID, s.now().UTC()); err != nil {
		s.warn("authcore: refresh revocation after password change failed for %s: %v", cred.ID, err)
	} else if n > 0 {
		s.metrics.Revocation()
	}

	s.emit(ctx, audit.Event{
		EventType: audit.EventPasswordChange,
		Subject:   cred.ID,
		Email:     cred.Email,
		Success:   true,
	})
	return nil
}

// UnlockAccount clears the failed-attempt counter and any lock expiry.
// An operator action; no password proof is demanded here.
func (s *Service) UnlockAccount(ctx context.Context, subject string) error {
	cred, err := s.creds.FindByID(ctx, subject)
	if err != nil {
		if IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := s.creds.ResetFailedAttempts(ctx, cred.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.emit(ctx, audit.Event{
		EventType: audit.EventAccountUnlocked,
		Subject:   cred.ID,
		Email:     cred.Email,
		Success:   true,
	})
	return nil
}
