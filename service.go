package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/arkivist/authcore/audit"
	"github.com/arkivist/authcore/metrics"
	"github.com/arkivist/authcore/password"
	"github.com/arkivist/authcore/ratelimit"
	"github.com/arkivist/authcore/revocation"
	"github.com/arkivist/authcore/token"
)

// Service orchestrates the credential and session lifecycle: register,
// login, refresh, logout, lockout policy and token rotation. Safe for
// concurrent use after New.
type Service struct {
	cfg Config

	hasher   *password.Hasher
	issuer   *token.Issuer
	registry *revocation.Registry

	creds  CredentialStore
	tokens RefreshTokenStore

	audit    *audit.Dispatcher
	metrics  *metrics.Collector
	throttle *ratelimit.PerKey

	warn func(format string, args ...any)
	now  func() time.Time
}

// Options carries the Service collaborators. Credentials, RefreshTokens
// and Registry are required; the rest are optional.
type Options struct {
	Credentials   CredentialStore
	RefreshTokens RefreshTokenStore
	Registry      *revocation.Registry

	// Audit receives one event per security-relevant transition. May be
	// nil.
	Audit *audit.Dispatcher
	// Metrics counts outcomes. May be nil.
	Metrics *metrics.Collector
	// Throttle gates login attempts per identifier+IP ahead of password
	// verification. May be nil.
	Throttle *ratelimit.PerKey

	// Warn is called for non-fatal internal conditions (best-effort
	// writes that failed). Defaults to a no-op.
	Warn func(format string, args ...any)
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// New validates cfg, fills unset fields from DefaultConfig, and wires
// the Service.
func New(cfg Config, opts Options) (*Service, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if opts.Credentials == nil {
		return nil, errors.New("authcore: credential store is required")
	}
	if opts.RefreshTokens == nil {
		return nil, errors.New("authcore: refresh token store is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("authcore: revocation registry is required")
	}

	hasher, err := password.New(cfg.Password)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	issuer, err := token.New(token.Config{
		Secret: cfg.SigningSecret,
		Issuer: cfg.Issuer,
		TTL:    cfg.AccessTTL,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	warn := opts.Warn
	if warn == nil {
		warn = func(string, ...any) {}
	}

	return &Service{
		cfg:      cfg,
		hasher:   hasher,
		issuer:   issuer,
		registry: opts.Registry,
		creds:    opts.Credentials,
		tokens:   opts.RefreshTokens,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		throttle: opts.Throttle,
		warn:     warn,
		now:      now,
	}, nil
}

// TokenIssuer exposes the issuer so transport middleware can validate
// with the same key and clock.
func (s *Service) TokenIssuer() *token.Issuer { return s.issuer }

// Registry exposes the revocation registry shared with the middleware.
func (s *Service) Registry() *revocation.Registry { return s.registry }

// IsAccessTokenRevoked consults the durable blacklist layer directly,
// for instances whose in-memory set cannot be trusted (e.g. freshly
// started).
func (s *Service) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return s.registry.IsRevokedDurable(ctx, jti)
}

// Prune removes expired refresh-token rows and revocation entries. Meant
// to run periodically.
func (s *Service) Prune(ctx context.Context) error {
	now := s.now()
	if _, err := s.tokens.DeleteExpired(ctx, now); err != nil {
		return err
	}
	_, err := s.registry.PruneExpired(ctx, now)
	return err
}

// emit queues an audit event enriched with request provenance.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if event.IP == "" {
		event.IP = ClientIPFromContext(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = UserAgentFromContext(ctx)
	}
	s.audit.Emit(ctx, event)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
