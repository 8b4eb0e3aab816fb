package grpcx

import (
	"context"
	"log/slog"
	"time"

	"github.com/medportal/timetable/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewServer builds a traced gRPC server with request id and logging
// interceptors and registers the standard health service on it.
func NewServer(logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	}
	srv := grpc.NewServer(append(base, opts...)...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv, hs
}

// WatchReadiness mirrors the readiness checks into the health service status
// for service until ctx is done.
func WatchReadiness(ctx context.Context, hs *health.Server, service string, every time.Duration, checks ...runtime.ReadyCheck) {
	if every <= 0 {
		every = 10 * time.Second
	}
	update := func() {
		if _, ok := runtime.RunChecks(ctx, checks...); ok {
			hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
			hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			return
		}
		hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}

	update()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
