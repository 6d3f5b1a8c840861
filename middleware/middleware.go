// Package middleware adapts token validation and role checks to
// net/http. It reads the Authorization header, validates the bearer
// token, consults the revocation registry, and injects the resulting
// principal into the request context. Authentication failures answer
// 401, authorization failures 403; the response bodies stay generic
// while the audit trail records the real reason.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/arkivist/authcore"
	"github.com/arkivist/authcore/audit"
	"github.com/arkivist/authcore/metrics"
	"github.com/arkivist/authcore/revocation"
	"github.com/arkivist/authcore/token"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal injected by Require or
// Optional.
func PrincipalFromContext(ctx context.Context) (authcore.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(authcore.Principal)
	return p, ok
}

// ContextWithPrincipal injects a principal directly, for tests and
// non-HTTP entry points.
func ContextWithPrincipal(ctx context.Context, p authcore.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Options wires an Authenticator. Issuer and Registry are required;
// Audit and Metrics may be nil.
type Options struct {
	Issuer   *token.Issuer
	Registry *revocation.Registry
	Audit    *audit.Dispatcher
	Metrics  *metrics.Collector
}

// Authenticator turns bearer tokens into principals.
type Authenticator struct {
	issuer   *token.Issuer
	registry *revocation.Registry
	audit    *audit.Dispatcher
	metrics  *metrics.Collector
}

// New returns an Authenticator.
func New(opts Options) (*Authenticator, error) {
	if opts.Issuer == nil {
		return nil, errors.New("middleware: token issuer is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("middleware: revocation registry is required")
	}
	return &Authenticator{
		issuer:   opts.Issuer,
		registry: opts.Registry,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
	}, nil
}

// Require rejects requests without a valid, unrevoked bearer token.
// On success the principal is available via PrincipalFromContext.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := a.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// Optional injects a principal when a valid token is presented and
// passes the request through anonymously otherwise. It never rejects.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if ok {
			if p, err := a.principalFor(r, raw); err == nil {
				r = r.WithContext(ContextWithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole runs after Require and rejects principals whose role does
// not satisfy required. Admin satisfies every role.
func (a *Authenticator) RequireRole(required authcore.Role) func(http.Handler) http.Handler {
	return a.requireRoles(required)
}

// RequireAnyRole accepts a principal satisfying any of the listed
// roles.
func (a *Authenticator) RequireAnyRole(required ...authcore.Role) func(http.Handler) http.Handler {
	return a.requireRoles(required...)
}

func (a *Authenticator) requireRoles(required ...authcore.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				// No established identity: authentication failure, not
				// an authorization one.
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !p.Role.SatisfiesAny(required...) {
				a.metrics.AccessDenied()
				names := make([]string, len(required))
				for i, role := range required {
					names[i] = role.String()
				}
				a.emit(r, audit.Event{
					EventType: audit.EventAccessDenied,
					Subject:   p.ID,
					Email:     p.Email,
					TokenID:   p.TokenID,
					Error:     authcore.ErrPermissionDenied.Error(),
					Metadata: map[string]string{
						"resource":       r.Method + " " + r.URL.Path,
						"required_roles": strings.Join(names, ","),
						"actual_role":    p.Role.String(),
					},
				})
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) authenticate(w http.ResponseWriter, r *http.Request) (authcore.Principal, bool) {
	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		a.metrics.InvalidToken("missing")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return authcore.Principal{}, false
	}

	p, err := a.principalFor(r, raw)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return authcore.Principal{}, false
	}
	return p, true
}

func (a *Authenticator) principalFor(r *http.Request, raw string) (authcore.Principal, error) {
	claims, err := a.issuer.Validate(raw)
	if err != nil {
		reason := invalidReason(err)
		a.metrics.InvalidToken(reason)
		a.emit(r, audit.Event{
			EventType: audit.EventInvalidToken,
			Error:     err.Error(),
			Metadata:  map[string]string{"reason": reason},
		})
		return authcore.Principal{}, err
	}

	revoked, err := a.registry.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		// Fail closed: an unreachable durable layer must not admit a
		// possibly revoked token.
		a.metrics.InvalidToken("revocation_check_failed")
		a.emit(r, audit.Event{
			EventType: audit.EventInvalidToken,
			Subject:   claims.Subject,
			TokenID:   claims.ID,
			Error:     err.Error(),
			Metadata:  map[string]string{"reason": "revocation_check_failed"},
		})
		return authcore.Principal{}, err
	}
	if revoked {
		a.metrics.InvalidToken("revoked")
		a.emit(r, audit.Event{
			EventType: audit.EventTokenRevoked,
			Subject:   claims.Subject,
			TokenID:   claims.ID,
			Error:     "token presented after revocation",
		})
		return authcore.Principal{}, authcore.ErrUnauthorized
	}

	role, err := authcore.ParseRole(claims.Role)
	if err != nil {
		a.metrics.InvalidToken("unknown_role")
		a.emit(r, audit.Event{
			EventType: audit.EventInvalidToken,
			Subject:   claims.Subject,
			TokenID:   claims.ID,
			Error:     err.Error(),
			Metadata:  map[string]string{"reason": "unknown_role"},
		})
		return authcore.Principal{}, err
	}

	return authcore.Principal{
		ID:         claims.Subject,
		Name:       claims.Name,
		Email:      claims.Email,
		Role:       role,
		Department: claims.Department,
		TokenID:    claims.ID,
	}, nil
}

func (a *Authenticator) emit(r *http.Request, event audit.Event) {
	if event.IP == "" {
		event.IP = clientIP(r)
	}
	if event.UserAgent == "" {
		event.UserAgent = r.UserAgent()
	}
	a.audit.Emit(r.Context(), event)
}

func invalidReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrSignature):
		return "signature"
	default:
		return "malformed"
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	raw := value[len(bearer):]
	if raw == "" {
		return "", false
	}
	return raw, true
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
