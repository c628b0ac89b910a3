package rpc

import (
	"net"

	"github.com/wfunc/mafia/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "mafia"

// HealthServer serves the standard grpc.health.v1 protocol for load balancers.
type HealthServer struct {
	listener net.Listener
	grpc     *grpc.Server
	health   *health.Server
}

func NewHealthServer(addr string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	hs := &HealthServer{
		listener: listener,
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
	}
	healthpb.RegisterHealthServer(hs.grpc, hs.health)
	hs.SetServing(true)
	return hs, nil
}

func (hs *HealthServer) Addr() net.Addr {
	return hs.listener.Addr()
}

// SetServing 同时设置整体状态和 mafia 服务状态
func (hs *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.health.SetServingStatus("", status)
	hs.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until Stop is called.
func (hs *HealthServer) Serve() error {
	logger.Log.Infof("gRPC health server listening on %s", hs.listener.Addr())
	if err := hs.grpc.Serve(hs.listener); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

func (hs *HealthServer) Stop() {
	hs.health.Shutdown()
	hs.grpc.GracefulStop()
}
