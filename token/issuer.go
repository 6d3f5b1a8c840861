// Package token issues and validates signed, time-bounded access tokens.
//
// Tokens are HS256 JWTs carrying the registered claims iss, sub, jti, iat
// and exp plus the domain fields name, email, role and dept. A token is
// never mutated after signing: revocation is tracked out of band by jti.
// Validation failures are classified so callers can react differently to
// an expired token versus a tampered one.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Validation failure classes. Every Validate error wraps exactly one of
// these.
var (
	ErrExpired   = errors.New("token expired")
	ErrSignature = errors.New("token signature invalid")
	ErrMalformed = errors.New("token malformed")
)

// Claims is the signed claim set embedded in every access token.
type Claims struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role"`
	Department string `json:"dept,omitempty"`
	jwt.RegisteredClaims
}

// Config configures an Issuer.
type Config struct {
	// Secret is the shared HMAC signing key. Required.
	Secret []byte
	// Issuer is the iss claim stamped on every token and enforced on
	// validation. Required.
	Issuer string
	// TTL is the access-token lifetime. Required, > 0.
	TTL time.Duration
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// Issuer builds and validates access tokens with a symmetric key.
// Safe for concurrent use after construction.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// New validates cfg and returns an Issuer. A missing secret or
// non-positive TTL is a configuration error.
func New(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("token: issuer identifier is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token: access TTL must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    now,
	}, nil
}

// TTL returns the configured access-token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a fresh token for subject with iat = now, exp = now + TTL
// and a newly generated jti. The returned claims mirror what was signed.
func (i *Issuer) Issue(subject, name, email, role, department string) (string, *Claims, error) {
	now := i.now().UTC()
	claims := &Claims{
		Name:       name,
		Email:      email,
		Role:       role,
		Department: department,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("token: sign: %w", err)
	}
	return signed, claims, nil
}

// Validate verifies the signature, issuer and expiry of tokenStr and
// returns the decoded claims. Failures wrap ErrExpired, ErrSignature or
// ErrMalformed.
func (i *Issuer) Validate(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)

	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid claim set", ErrMalformed)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrMalformed)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil ||
		!claims.ExpiresAt.Time.After(claims.IssuedAt.Time) {
		return nil, fmt.Errorf("%w: inconsistent timestamps", ErrMalformed)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
