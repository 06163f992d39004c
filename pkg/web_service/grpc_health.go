package web_service

import (
	"errors"

	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	MockServiceName = "respcli.MockServer"
)

// GrpcHealth serves the standard grpc health service next to the http admin
// endpoints, sharing the admin listener through cmux.
type GrpcHealth struct {
	server *grpc.Server
	health *health.Server
}

func NewGrpcHealth() *GrpcHealth {
	server := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	healthSrv.SetServingStatus(MockServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GrpcHealth{server: server, health: healthSrv}
}

// SetServing flips the status of the mock service and of the overall server.
func (g *GrpcHealth) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(MockServiceName, status)
}

func (g *GrpcHealth) Start(m cmux.CMux) error {
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	logger.Info("GRPC health service starting.")
	if err := g.server.Serve(grpcL); err != nil {
		if errors.Is(err, grpc.ErrServerStopped) || errors.Is(err, cmux.ErrListenerClosed) {
			return nil
		}
		logger.Error(err, "Failed to start grpc health service")
		return err
	}
	return nil
}

func (g *GrpcHealth) Shutdown() {
	g.health.Shutdown()
	g.server.GracefulStop()
	logger.Info("GRPC health service stopped.")
}
