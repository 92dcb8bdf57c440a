package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "github.com/Jaldeepsinh-Gohil/MeetMate/internal/health/handler"
)

// NewGRPCServer returns a gRPC server exposing grpc.health.v1 for load balancers
// and orchestrators. Calls are traced with the global OTel tracer provider.
func NewGRPCServer(h *healthhandler.GRPC, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.Server)
	return s
}
