package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Login("success")
	c.Login("success")
	c.Login("failure")
	c.Refresh("reuse")
	c.Registration("duplicate")
	c.Revocation()
	c.Lockout()
	c.AccessDenied()
	c.InvalidToken("expired")
	c.LoginThrottled()

	if got := testutil.ToFloat64(c.logins.WithLabelValues("success")); got != 2 {
		t.Fatalf("logins{success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.logins.WithLabelValues("failure")); got != 1 {
		t.Fatalf("logins{failure} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.refreshes.WithLabelValues("reuse")); got != 1 {
		t.Fatalf("refreshes{reuse} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.lockouts); got != 1 {
		t.Fatalf("lockouts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.invalidTokens.WithLabelValues("expired")); got != 1 {
		t.Fatalf("invalid_tokens{expired} = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.Login("success")
	c.Refresh("success")
	c.Registration("success")
	c.Revocation()
	c.Lockout()
	c.AccessDenied()
	c.InvalidToken("malformed")
	c.LoginThrottled()
}
