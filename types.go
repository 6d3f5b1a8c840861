package authcore

import (
	"fmt"
	"time"
)

// Role is the closed set of access levels. Admin is an implicit superset
// of every other role; the check is a total function over the enum rather
// than a string comparison.
type Role uint8

const (
	RoleViewer Role = iota
	RoleEditor
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleEditor:
		return "editor"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole maps the wire form back to the enum.
func ParseRole(s string) (Role, error) {
	switch s {
	case "viewer":
		return RoleViewer, nil
	case "editor":
		return RoleEditor, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleViewer, fmt.Errorf("unknown role %q", s)
	}
}

// Satisfies reports whether r grants access where required is demanded.
func (r Role) Satisfies(required Role) bool {
	return r == RoleAdmin || r == required
}

// SatisfiesAny reports whether r grants access for any of the required
// roles.
func (r Role) SatisfiesAny(required ...Role) bool {
	if r == RoleAdmin {
		return true
	}
	for _, req := range required {
		if r == req {
			return true
		}
	}
	return false
}

// Credential is the persisted account record. FailedAttempts resets to
// zero on a successful login or an operator unlock; a LockedUntil in the
// past counts as unlocked without requiring an explicit write.
type Credential struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	Role              Role
	Department        string
	Active            bool
	EmailVerified     bool
	FailedAttempts    int
	LockedUntil       *time.Time
	LastLoginAt       *time.Time
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Locked reports whether the credential is locked as of now.
func (c *Credential) Locked(now time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(now)
}

// RefreshToken is the persisted refresh-token record. Only the hash of
// the secret is stored, never the secret itself. A record is valid iff
// RevokedAt is unset and ExpiresAt is in the future; rotation revokes the
// old record and inserts a new one, making each token single-use.
type RefreshToken struct {
	ID           string
	CredentialID string
	TokenHash    string
	UserAgent    string
	IP           string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	RevokedAt    *time.Time
}

// Valid reports whether the record can still be exchanged as of now.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// Principal is the request-scoped, validated identity derived from token
// claims. It lives only in the request's context.
type Principal struct {
	ID         string
	Name       string
	Email      string
	Role       Role
	Department string
	TokenID    string
}

// PrincipalFromCredential builds the public principal view of c. TokenID
// is filled in by whoever issued or validated the token.
func PrincipalFromCredential(c *Credential) Principal {
	return Principal{
		ID:         c.ID,
		Name:       c.Name,
		Email:      c.Email,
		Role:       c.Role,
		Department: c.Department,
	}
}

// Session is the result of a successful login or refresh.
type Session struct {
	AccessToken  string
	RefreshToken string
	Principal    Principal
}

// RegisterInput is the input to Service.Register.
type RegisterInput struct {
	Email      string
	Password   string
	Name       string
	Department string
}

// LogoutOptions selects which refresh tokens Logout revokes, in addition
// to the presented access token's jti.
type LogoutOptions struct {
	// RefreshToken, when set, revokes only the matching record.
	RefreshToken string
	// AllDevices revokes every live refresh token owned by the subject.
	AllDevices bool
}
