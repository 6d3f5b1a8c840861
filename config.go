package authcore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/arkivist/authcore/password"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvSigningSecret     = "AUTHCORE_SIGNING_SECRET"
	EnvIssuer            = "AUTHCORE_ISSUER"
	EnvAccessTTL         = "AUTHCORE_ACCESS_TTL"
	EnvRefreshTTL        = "AUTHCORE_REFRESH_TTL"
	EnvMaxFailedAttempts = "AUTHCORE_MAX_FAILED_ATTEMPTS"
	EnvLockoutDuration   = "AUTHCORE_LOCKOUT_DURATION"
)

// Config holds the engine's tunables. Zero values are filled in from
// DefaultConfig by NewService; SigningSecret has no default and must be
// provided.
type Config struct {
	// SigningSecret is the shared HMAC key for access tokens.
	SigningSecret []byte
	// Issuer is the iss claim stamped on and required of every token.
	Issuer string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// MaxFailedAttempts is the failed-login threshold that triggers a
	// lockout.
	MaxFailedAttempts int
	// LockoutDuration is how long a triggered lockout lasts.
	LockoutDuration time.Duration

	// RequireVerifiedEmail rejects logins from accounts that have not
	// verified their address.
	RequireVerifiedEmail bool
	// RehashOnLogin upgrades stored password hashes to the active cost
	// profile after a successful verification.
	RehashOnLogin bool

	Password password.Config
}

// DefaultConfig returns the production defaults: 1h access tokens, 7d
// refresh tokens, lockout after 5 failures for 15 minutes.
func DefaultConfig() Config {
	return Config{
		Issuer:            "authcore",
		AccessTTL:         time.Hour,
		RefreshTTL:        7 * 24 * time.Hour,
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		RehashOnLogin:     true,
		Password:          password.DefaultConfig(),
	}
}

// ConfigFromEnv builds a Config from the environment on top of the
// defaults. Durations accept time.ParseDuration syntax or a bare number
// of seconds.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	secret := os.Getenv(EnvSigningSecret)
	if secret == "" {
		return Config{}, fmt.Errorf("%s is required", EnvSigningSecret)
	}
	cfg.SigningSecret = []byte(secret)

	if v := os.Getenv(EnvIssuer); v != "" {
		cfg.Issuer = v
	}

	var err error
	if cfg.AccessTTL, err = envDuration(EnvAccessTTL, cfg.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = envDuration(EnvRefreshTTL, cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.LockoutDuration, err = envDuration(EnvLockoutDuration, cfg.LockoutDuration); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(EnvMaxFailedAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("%s: invalid value %q", EnvMaxFailedAttempts, v)
		}
		cfg.MaxFailedAttempts = n
	}

	return cfg, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%s: must be positive", name)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", name, v)
	}
	return d, nil
}

func (c *Config) validate() error {
	if len(c.SigningSecret) == 0 {
		return errors.New("config: signing secret is required")
	}
	if c.AccessTTL <= 0 {
		return errors.New("config: access TTL must be positive")
	}
	if c.RefreshTTL <= 0 {
		return errors.New("config: refresh TTL must be positive")
	}
	if c.MaxFailedAttempts <= 0 {
		return errors.New("config: max failed attempts must be positive")
	}
	if c.LockoutDuration <= 0 {
		return errors.New("config: lockout duration must be positive")
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Issuer == "" {
		c.Issuer = def.Issuer
	}
	if c.AccessTTL == 0 {
		c.AccessTTL = def.AccessTTL
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = def.RefreshTTL
	}
	if c.MaxFailedAttempts == 0 {
		c.MaxFailedAttempts = def.MaxFailedAttempts
	}
	if c.LockoutDuration == 0 {
		c.LockoutDuration = def.LockoutDuration
	}
	if c.Password == (password.Config{}) {
		c.Password = def.Password
	}
}
