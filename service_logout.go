package authcore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/arkivist/authcore/audit"
	"github.com/arkivist/authcore/internal/secrets"
)

// Logout invalidates the presented access token and, per opts, one or
// all of the subject's refresh tokens.
//
// The access token's jti always lands in the in-memory revocation layer,
// even when the durable write fails; a durable failure is logged and
// reported but this instance stops honoring the token immediately.
func (s *Service) Logout(ctx context.Context, subject, jti string, opts LogoutOptions) error {
	now := s.now().UTC()
	meta := map[string]string{}

	if opts.AllDevices {
		n, err := s.tokens.RevokeAllForCredential(ctx, subject, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		meta["all_devices"] = "true"
		meta["refresh_tokens_revoked"] = strconv.FormatInt(n, 10)
	} else if opts.RefreshToken != "" {
		if err := s.revokeOwnRefreshToken(ctx, subject, opts.RefreshToken, now); err != nil {
			return err
		}
		meta["refresh_tokens_revoked"] = "1"
	}

	// Memory first. The jti stays dead on this instance no matter what
	// the durable layer does.
	var durableErr error
	if jti != "" {
		durableErr = s.registry.Revoke(ctx, jti, now.Add(s.issuer.TTL()))
		if durableErr != nil {
			s.warn("authcore: durable revocation write failed for jti %s: %v", jti, durableErr)
			meta["durable_write"] = "failed"
		}
		s.metrics.Revocation()
	}

	s.emit(ctx, audit.Event{
		EventType: audit.EventLogout,
		Subject:   subject,
		TokenID:   jti,
		Success:   true,
		Metadata:  meta,
	})

	if durableErr != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, durableErr)
	}
	return nil
}

// revokeOwnRefreshToken revokes the presented refresh token after
// checking it belongs to subject. A token that does not decode, does
// not exist, or belongs to someone else is reported as ErrRefreshInvalid
// without revealing which.
func (s *Service) revokeOwnRefreshToken(ctx context.Context, subject, refreshToken string, now time.Time) error {
	id, secret, err := secrets.Decode(refreshToken)
	if err != nil {
		return ErrRefreshInvalid
	}

	record, err := s.tokens.FindByHash(ctx, secrets.HashString(secret))
	if err != nil {
		if IsNotFound(err) {
			return ErrRefreshInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if record.ID != id || record.CredentialID != subject {
		return ErrRefreshInvalid
	}

	if err := s.tokens.Revoke(ctx, record.ID, now); err != nil && !IsNotFound(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
