package monitor

import (
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for a session.
const ServiceName = "trajectory"

// HealthServer serves the standard gRPC health protocol. It reports
// SERVING while a session is processing frames.
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewHealthServer creates a health server; call Start to serve it.
func NewHealthServer() *HealthServer {
	hs := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(hs.server, hs.health)
	hs.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Listen binds addr and starts serving in the background.
func (hs *HealthServer) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	hs.Start(lis)
	return nil
}

// Start serves on lis in the background.
func (hs *HealthServer) Start(lis net.Listener) {
	hs.listener = lis
	hs.wg.Add(1)
	go func() {
		defer hs.wg.Done()
		logf("gRPC health server listening on %s", lis.Addr())
		if err := hs.server.Serve(lis); err != nil {
			logf("gRPC health server error: %v", err)
		}
	}()
}

// Addr returns the bound address, or nil before Start.
func (hs *HealthServer) Addr() net.Addr {
	if hs.listener == nil {
		return nil
	}
	return hs.listener.Addr()
}

// SetServing flips the reported status of the session service.
func (hs *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.health.SetServingStatus(ServiceName, status)
}

// Stop shuts the server down gracefully.
func (hs *HealthServer) Stop() {
	hs.health.Shutdown()
	hs.server.GracefulStop()
	hs.wg.Wait()
}
