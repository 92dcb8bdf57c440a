package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the session service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds prometheus.ObserverVec
	LoginsTotal                *prometheus.CounterVec
	SessionsIssuedTotal        prometheus.Counter
	RotationsTotal             *prometheus.CounterVec
	RevocationsTotal           *prometheus.CounterVec
	GuardRefreshesTotal        *prometheus.CounterVec
}

// New creates the collectors curried with service and registers them on reg.
func New(reg prometheus.Registerer, serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}
	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	logins := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of login attempts.",
		},
		[]string{"service", "result"},
	)
	issued := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_issued_total",
			Help: "Total number of sessions created at login.",
		},
		[]string{"service"},
	)
	rotations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_rotations_total",
			Help: "Refresh-token rotations by outcome.",
		},
		[]string{"service", "outcome"},
	)
	revocations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_revocations_total",
			Help: "Sessions revoked by reason.",
		},
		[]string{"service", "reason"},
	)
	guardRefreshes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_guard_refreshes_total",
			Help: "Guard-driven refreshes by outcome.",
		},
		[]string{"service", "outcome"},
	)
	reg.MustRegister(httpRequests, httpDuration, logins, issued, rotations, revocations, guardRefreshes)

	return &Metrics{
		HTTPRequestsTotal:          httpRequests.MustCurryWith(labels),
		HTTPRequestDurationSeconds: httpDuration.MustCurryWith(labels),
		LoginsTotal:                logins.MustCurryWith(labels),
		SessionsIssuedTotal:        issued.With(labels),
		RotationsTotal:             rotations.MustCurryWith(labels),
		RevocationsTotal:           revocations.MustCurryWith(labels),
		GuardRefreshesTotal:        guardRefreshes.MustCurryWith(labels),
	}
}

func (m *Metrics) Login(result string) {
	if m != nil {
		m.LoginsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SessionIssued() {
	if m != nil {
		m.SessionsIssuedTotal.Inc()
	}
}

func (m *Metrics) Rotation(outcome string) {
	if m != nil {
		m.RotationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Revoked(reason string, n int) {
	if m != nil && n > 0 {
		m.RevocationsTotal.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) GuardRefresh(outcome string) {
	if m != nil {
		m.GuardRefreshesTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) HTTPRequest(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDurationSeconds.WithLabelValues(method, path).Observe(seconds)
}
