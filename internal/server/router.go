// Package server assembles the HTTP API and the gRPC health endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	healthhandler "github.com/Jaldeepsinh-Gohil/MeetMate/internal/health/handler"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/observability/metrics"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/policy/engine"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/security"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/server/middleware"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
	sessionhandler "github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/handler"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/repository"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry"
)

// Deps holds the HTTP router dependencies. Auth, Health, Tokens and Policy are required.
type Deps struct {
	Auth   *sessionhandler.Handler
	Health *healthhandler.HTTP
	Tokens *security.TokenProvider
	Policy engine.Evaluator
	// SessionValidator rejects access tokens of revoked sessions. If nil, access tokens are trusted until expiry.
	SessionValidator middleware.SessionValidator
	Metrics          *metrics.Metrics
	// Gatherer backs /metrics. If nil, /metrics is not mounted.
	Gatherer prometheus.Gatherer
	// Events receives an http_request event per API call. If nil, no request telemetry is emitted.
	Events      telemetry.EventEmitter
	CORSOrigins []string
	// RateLimitPerMinute caps requests per client IP; zero disables the limiter.
	RateLimitPerMinute int
	// RequestTimeout bounds each request's context; zero leaves requests unbounded.
	RequestTimeout time.Duration
	Log            logrus.FieldLogger
}

// untracedPaths are not reported as request telemetry.
var untracedPaths = map[string]bool{
	"/actuator/health": true,
	"/actuator/info":   true,
	"/metrics":         true,
}

// NewRouter returns the HTTP handler of the auth service.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.PropagateRequestID)
	r.Use(chimw.Recoverer)
	if d.RequestTimeout > 0 {
		r.Use(chimw.Timeout(d.RequestTimeout))
	}
	r.Use(middleware.ClientIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if d.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(d.RateLimitPerMinute, time.Minute))
	}
	r.Use(middleware.Metrics(d.Metrics))
	r.Use(middleware.Authenticate(d.Tokens, d.Policy, d.SessionValidator, log))
	r.Use(middleware.Telemetry(d.Events, untracedPaths))

	d.Health.Routes(r)
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	d.Auth.Routes(r)
	return r
}

// maxRotationHops bounds the successor walk in SessionLive. An access token
// outlives only a few rotations of its session.
const maxRotationHops = 8

// SessionLive returns a SessionValidator backed by the session store. A rotated
// session stays live while its successor is, so an access token minted before
// a rotation works until it expires but dies with a logout of the newest session.
func SessionLive(store repository.Store) middleware.SessionValidator {
	return func(ctx context.Context, sessionID string) (bool, error) {
		id := sessionID
		for hop := 0; hop <= maxRotationHops; hop++ {
			s, err := store.GetByID(ctx, id)
			if err != nil {
				return false, err
			}
			if s == nil || s.Status == domain.StatusRevoked {
				return false, nil
			}
			if s.Status != domain.StatusRotated || s.ReplacedBy == "" {
				return true, nil
			}
			id = s.ReplacedBy
		}
		return false, nil
	}
}
