package authcore

import "errors"

// Policy rejections. Safe to return to callers verbatim.
var (
	ErrInvalidEmail   = errors.New("invalid email address")
	ErrWeakPassword   = errors.New("password does not meet policy")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrPasswordReuse  = errors.New("new password must differ from the current password")
)

// Authentication failures. These carry the true reason internally (and
// into the audit trail) but must be collapsed to ErrUnauthorized before
// crossing the trust boundary; see Sanitize.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrRefreshInvalid     = errors.New("invalid refresh token")
	ErrLoginThrottled     = errors.New("too many login attempts")
	ErrUnauthorized       = errors.New("unauthorized")
)

// ErrPermissionDenied is an authorization failure: identity was
// established but the role is insufficient. Reported distinctly from
// authentication failures.
var ErrPermissionDenied = errors.New("permission denied")

// Infrastructure failures. Logged in full internally, surfaced to
// callers as an opaque internal error, never reinterpreted as an
// authentication outcome.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInternal         = errors.New("internal error")
)

// ErrNotFound is the domain-level not-found signal returned by store
// implementations, distinct from an I/O error.
var ErrNotFound = errors.New("not found")

// Sanitize maps the rich internal error to the narrow public one:
// authentication failures collapse to ErrUnauthorized so callers cannot
// distinguish a wrong password from a locked or missing account, and
// infrastructure failures collapse to ErrInternal. Policy and
// authorization errors pass through unchanged.
func Sanitize(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrAccountDisabled),
		errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrUnauthorized):
		return ErrUnauthorized
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrInternal),
		errors.Is(err, ErrNotFound):
		return ErrInternal
	default:
		return err
	}
}
