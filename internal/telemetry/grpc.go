package telemetry

import (
	"context"
	"log/slog"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func GRPCServerInterceptor() grpc.ServerOption {
	opts := []logging.Option{
		logging.WithLogOnEvents(logging.StartCall, logging.FinishCall),
	}

	return grpc.ChainUnaryInterceptor(
		logging.UnaryServerInterceptor(grpcServerLogger(slog.Default()), opts...),
	)
}

func grpcServerLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

// RegisterHealth serves grpc.health.v1 on g. The returned server is used to
// flip the status to NOT_SERVING on shutdown.
func RegisterHealth(g *grpc.Server, services ...string) *health.Server {
	h := health.NewServer()
	healthpb.RegisterHealthServer(g, h)

	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, svc := range services {
		h.SetServingStatus(svc, healthpb.HealthCheckResponse_SERVING)
	}

	return h
}
