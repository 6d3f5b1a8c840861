// Package authcore is the authentication and session lifecycle engine:
// it turns a submitted credential into a verified, time-bounded,
// revocable identity assertion.
//
// The root package exposes the Service orchestrating registration,
// login, refresh and logout against pluggable stores, plus the domain
// types, error taxonomy and configuration. Supporting concerns live in
// subpackages:
//
//   - password: Argon2id hashing and the strength policy
//   - token: signed access-token issuance and classified validation
//   - revocation: the dual-layer (in-memory + durable) jti denylist
//   - audit: the structured security-event contract and async dispatch
//   - middleware: per-request bearer validation and role gates
//   - metrics: Prometheus counters for security-relevant transitions
//   - ratelimit: per-key login throttling
//   - store/postgres, store/memory: CredentialStore implementations
//
// Service methods are safe for concurrent use after construction.
// Errors fall into four classes (policy, authentication, authorization,
// infrastructure); authentication failures must be passed through
// Sanitize before crossing a trust boundary so that callers cannot
// probe for account existence or lockout state.
package authcore
