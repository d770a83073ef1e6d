package utilities

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// RegisterHealthServer registers the gRPC health check service and reports it as serving.
func RegisterHealthServer(grpcServer *grpc.Server) *health.Server {
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return healthServer
}

// HealthEndpoint is a gRPC server exposing only the health service. Consul
// probes it to decide whether the instance receives traffic.
type HealthEndpoint struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthEndpoint creates a HealthEndpoint that reports SERVING.
func NewHealthEndpoint() *HealthEndpoint {
	server := grpc.NewServer()

	return &HealthEndpoint{
		server: server,
		health: RegisterHealthServer(server),
	}
}

// Serve accepts connections on lis until Stop is called.
func (e *HealthEndpoint) Serve(lis net.Listener) error {
	if err := e.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}

// ListenAndServe listens on addr and serves until ctx is done.
func (e *HealthEndpoint) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		e.Stop()
	}()

	return e.Serve(lis)
}

// Shutdown marks the instance as not serving so health checks fail while in-flight
// requests drain.
func (e *HealthEndpoint) Shutdown() {
	e.health.Shutdown()
}

func (e *HealthEndpoint) Stop() {
	e.health.Shutdown()
	e.server.GracefulStop()
}
