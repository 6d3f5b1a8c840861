// Package metrics exposes Prometheus counters for security-relevant
// transitions. All Collector methods are nil-receiver safe so callers
// can instrument unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the engine's counters.
type Collector struct {
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	registrations *prometheus.CounterVec
	revocations   prometheus.Counter
	lockouts      prometheus.Counter
	denials       prometheus.Counter
	invalidTokens *prometheus.CounterVec
	throttled     prometheus.Counter
}

// New creates the counters and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_refreshes_total",
			Help: "Refresh-token exchanges by result.",
		}, []string{"result"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_registrations_total",
			Help: "Registration attempts by result.",
		}, []string{"result"}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_token_revocations_total",
			Help: "Access-token jti revocations.",
		}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_account_lockouts_total",
			Help: "Accounts locked after repeated failed logins.",
		}),
		denials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_access_denials_total",
			Help: "Requests rejected by a role gate.",
		}),
		invalidTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_invalid_tokens_total",
			Help: "Access tokens rejected during validation, by reason.",
		}, []string{"reason"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_logins_throttled_total",
			Help: "Login attempts rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(
		c.logins, c.refreshes, c.registrations,
		c.revocations, c.lockouts, c.denials,
		c.invalidTokens, c.throttled,
	)
	return c
}

func (c *Collector) Login(result string) {
	if c == nil {
		return
	}
	c.logins.WithLabelValues(result).Inc()
}

func (c *Collector) Refresh(result string) {
	if c == nil {
		return
	}
	c.refreshes.WithLabelValues(result).Inc()
}

func (c *Collector) Registration(result string) {
	if c == nil {
		return
	}
	c.registrations.WithLabelValues(result).Inc()
}

func (c *Collector) Revocation() {
	if c == nil {
		return
	}
	c.revocations.Inc()
}

func (c *Collector) Lockout() {
	if c == nil {
		return
	}
	c.lockouts.Inc()
}

func (c *Collector) AccessDenied() {
	if c == nil {
		return
	}
	c.denials.Inc()
}

func (c *Collector) InvalidToken(reason string) {
	if c == nil {
		return
	}
	c.invalidTokens.WithLabelValues(reason).Inc()
}

func (c *Collector) LoginThrottled() {
	if c == nil {
		return
	}
	c.throttled.Inc()
}
