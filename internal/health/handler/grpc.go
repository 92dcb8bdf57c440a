package handler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status.
const ServiceName = "meetmate.auth"

// GRPC keeps a standard grpc.health.v1 server in sync with the Checker.
type GRPC struct {
	Server  *health.Server
	checker *Checker
	log     logrus.FieldLogger
}

// NewGRPC returns a health server that reports NOT_SERVING until the first Update.
func NewGRPC(checker *Checker, log logrus.FieldLogger) *GRPC {
	if log == nil {
		log = logrus.StandardLogger()
	}
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPC{Server: srv, checker: checker, log: log}
}

// Update runs the checks once and publishes the result. It returns the published status.
func (g *GRPC) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := g.checker.Run(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if !st.Up {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		for name, err := range st.Components {
			if err != nil {
				g.log.WithError(err).WithField("component", name).Warn("health: check failed")
			}
		}
	}
	g.Server.SetServingStatus("", status)
	g.Server.SetServingStatus(ServiceName, status)
	return status
}

// Run updates the status every interval until ctx is done, then marks the server as shutting down.
func (g *GRPC) Run(ctx context.Context, interval time.Duration) {
	g.Update(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			g.Server.Shutdown()
			return
		case <-t.C:
			g.Update(ctx)
		}
	}
}
