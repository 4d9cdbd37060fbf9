package grpc_control

import (
	"context"
	"fmt"
	"net"

	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Health service names reported by the control server.
const (
	ServiceCache   = "portfolio.cache"
	ServiceRefresh = "portfolio.refresh"
)

// ControlService exposes the standard gRPC health protocol for the cache
// subsystem. Reflection is registered for grpcurl style tooling.
type ControlService struct {
	Config *models.MConfig
	Logger *logger.Logger
	Health *health.Server

	server *grpc.Server
}

// -----------------------------------------------------------------------------

func NewControlService(cfg *models.MConfig, log *logger.Logger) *ControlService {
	if log == nil {
		log = logger.NewLogger(cfg, "ControlService")
	}
	hs := health.NewServer()
	hs.SetServingStatus(ServiceCache, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceRefresh, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &ControlService{Config: cfg, Logger: log, Health: hs, server: srv}
}

// -----------------------------------------------------------------------------

// SetCacheServing flips the cache service status, set once bootstrap is done.
func (s *ControlService) SetCacheServing(serving bool) {
	s.Health.SetServingStatus(ServiceCache, toStatus(serving))
}

// SetRefreshServing reports whether scheduled refreshes are enabled.
func (s *ControlService) SetRefreshServing(serving bool) {
	s.Health.SetServingStatus(ServiceRefresh, toStatus(serving))
}

func toStatus(serving bool) healthpb.HealthCheckResponse_ServingStatus {
	if serving {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// -----------------------------------------------------------------------------

// Serve blocks serving on lis until Stop.
func (s *ControlService) Serve(lis net.Listener) error {
	s.Logger.Info("Starting gRPC Control Server on %s", lis.Addr())
	return s.server.Serve(lis)
}

// -----------------------------------------------------------------------------

// ListenAndServe listens on the configured gRPC address.
func (s *ControlService) ListenAndServe(ctx context.Context) error {
	port := s.Config.GrpcPort
	if port == 0 {
		port = utils.DefaultGrpcPort
	}
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.Config.GrpcHost, port))
	if err != nil {
		return fmt.Errorf("listen for gRPC: %w", err)
	}
	return s.Serve(lis)
}

// -----------------------------------------------------------------------------

// Stop marks every service NOT_SERVING and drains open calls.
func (s *ControlService) Stop() {
	s.Health.Shutdown()
	s.server.GracefulStop()
}
