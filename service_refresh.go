package authcore

import (
	"context"
	"fmt"

	"github.com/arkivist/authcore/audit"
	"github.com/arkivist/authcore/internal/ids"
	"github.com/arkivist/authcore/internal/secrets"
)

// Refresh exchanges a live refresh token for a new session. The
// presented token is consumed: the stored record is revoked and a
// replacement is inserted in one atomic step, so a token replayed after
// a successful exchange fails. Every failure collapses to
// ErrRefreshInvalid outwardly; the audit trail keeps the distinction.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	now := s.now().UTC()

	id, secret, err := secrets.Decode(refreshToken)
	if err != nil {
		s.metrics.Refresh("failure")
		s.emit(ctx, audit.Event{
			EventType: audit.EventRefresh,
			Error:     ErrRefreshInvalid.Error(),
			Metadata:  map[string]string{"reason": "malformed_token"},
		})
		return nil, ErrRefreshInvalid
	}

	record, err := s.tokens.FindByHash(ctx, secrets.HashString(secret))
	if err != nil {
		if IsNotFound(err) {
			s.metrics.Refresh("failure")
			s.emit(ctx, audit.Event{
				EventType: audit.EventRefresh,
				Error:     ErrRefreshInvalid.Error(),
				Metadata:  map[string]string{"reason": "unknown_token"},
			})
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// The secret hash must belong to the row named in the token. A
	// mismatch means the token was stitched together from parts.
	if record.ID != id {
		s.metrics.Refresh("failure")
		s.emit(ctx, audit.Event{
			EventType: audit.EventRefresh,
			Subject:   record.CredentialID,
			Error:     ErrRefreshInvalid.Error(),
			Metadata:  map[string]string{"reason": "row_key_mismatch"},
		})
		return nil, ErrRefreshInvalid
	}

	if !record.Valid(now) {
		reason := "expired"
		if record.RevokedAt != nil {
			// A revoked token showing up again is the replay signal.
			reason = "reused_after_rotation"
			s.metrics.Refresh("reuse")
		} else {
			s.metrics.Refresh("failure")
		}
		s.emit(ctx, audit.Event{
			EventType: audit.EventRefresh,
			Subject:   record.CredentialID,
			Error:     ErrRefreshInvalid.Error(),
			Metadata:  map[string]string{"reason": reason},
		})
		return nil, ErrRefreshInvalid
	}

	cred, err := s.creds.FindByID(ctx, record.CredentialID)
	if err != nil {
		if IsNotFound(err) {
			s.metrics.Refresh("failure")
			s.emit(ctx, audit.Event{
				EventType: audit.EventRefresh,
				Subject:   record.CredentialID,
				Error:     ErrRefreshInvalid.Error(),
				Metadata:  map[string]string{"reason": "unknown_credential"},
			})
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !cred.Active || cred.Locked(now) {
		s.metrics.Refresh("failure")
		s.emit(ctx, audit.Event{
			EventType: audit.EventRefresh,
			Subject:   cred.ID,
			Email:     cred.Email,
			Error:     ErrRefreshInvalid.Error(),
			Metadata:  map[string]string{"reason": "credential_unusable"},
		})
		return nil, ErrRefreshInvalid
	}

	newSecret, err := secrets.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	replacement := &RefreshToken{
		ID:           ids.New(),
		CredentialID: cred.ID,
		TokenHash:    secrets.HashString(newSecret),
		UserAgent:    UserAgentFromContext(ctx),
		IP:           ClientIPFromContext(ctx),
		ExpiresAt:    now.Add(s.cfg.RefreshTTL),
		CreatedAt:    now,
	}

	if err := s.tokens.Rotate(ctx, record.ID, now, replacement); err != nil {
		if IsNotFound(err) {
			// Lost the race against a concurrent rotation of the same
			// token. Whoever presented it second does not get a session.
			s.metrics.Refresh("reuse")
			s.emit(ctx, audit.Event{
				EventType: audit.EventRefresh,
				Subject:   cred.ID,
				Email:     cred.Email,
				Error:     ErrRefreshInvalid.Error(),
				Metadata:  map[string]string{"reason": "concurrent_rotation"},
			})
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	access, claims, err := s.issuer.Issue(cred.ID, cred.Name, cred.Email, cred.Role.String(), cred.Department)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	wire, err := secrets.Encode(replacement.ID, newSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	principal := PrincipalFromCredential(cred)
	principal.TokenID = claims.ID

	s.metrics.Refresh("success")
	s.emit(ctx, audit.Event{
		EventType: audit.EventRefresh,
		Subject:   cred.ID,
		Email:     cred.Email,
		TokenID:   claims.ID,
		Success:   true,
	})

	return &Session{
		AccessToken:  access,
		RefreshToken: wire,
		Principal:    principal,
	}, nil
}
