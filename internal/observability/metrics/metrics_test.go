package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test")
	m.Rotation("success")
	m.Rotation("success")
	m.Rotation("reused")
	m.Revoked("reuse", 3)
	m.Revoked("logout", 0)
	m.SessionIssued()
	m.HTTPRequest("POST", "/api/auth/login", "200", 0.01)

	if got := testutil.ToFloat64(m.RotationsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("rotations success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RevocationsTotal.WithLabelValues("reuse")); got != 3 {
		t.Errorf("revocations reuse = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.SessionsIssuedTotal); got != 1 {
		t.Errorf("issued = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/auth/login", "200")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Rotation("success")
	m.Login("ok")
	m.SessionIssued()
	m.Revoked("logout", 1)
	m.GuardRefresh("success")
	m.HTTPRequest("GET", "/", "200", 0)
}
