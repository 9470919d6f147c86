package grpc

import (
	"context"

	"github.com/juju/loggo/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var logger = loggo.GetLogger("rollbook.grpc")

// Service names reported through the health service. The empty name is the
// process as a whole.
const (
	RemoteService = "rollbook.remote"
	CacheService  = "rollbook.cache"
)

// Health tracks the reachability of the backing stores.
type Health struct {
	server *health.Server
}

func NewHealth() *Health {
	h := &Health{server: health.NewServer()}
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.server.SetServingStatus(RemoteService, healthpb.HealthCheckResponse_UNKNOWN)
	h.server.SetServingStatus(CacheService, healthpb.HealthCheckResponse_UNKNOWN)
	return h
}

// SetServing records whether service is currently reachable.
func (h *Health) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus(service, status)
}

func (h *Health) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.server.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Shutdown reports every service as NOT_SERVING.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}

// NewServer returns a gRPC server exposing the health service.
func NewServer(h *Health) *grpc.Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(logErrors))
	healthpb.RegisterHealthServer(s, h.server)
	return s
}

func logErrors(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		logger.Debugf("%s: %v", info.FullMethod, err)
	}
	return resp, err
}
