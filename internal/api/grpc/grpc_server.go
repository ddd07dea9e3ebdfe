package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name reported next to the overall "".
const ServiceName = "trade_gateway"

const checkInterval = 5 * time.Second

// GRPCServer exposes the standard health service. The status follows the
// store: SERVING while it answers pings.
type GRPCServer struct {
	Health   *health.Server
	ping     func(ctx context.Context) error
	interval time.Duration
	log      logrus.FieldLogger
}

func NewGRPCServer(ping func(ctx context.Context) error, log logrus.FieldLogger) *GRPCServer {
	return &GRPCServer{
		Health:   health.NewServer(),
		ping:     ping,
		interval: checkInterval,
		log:      log,
	}
}

// Server builds a grpc.Server with the health service registered.
func (s *GRPCServer) Server() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))
	healthpb.RegisterHealthServer(srv, s.Health)
	return srv
}

// Check pings the store once and publishes the result.
func (s *GRPCServer) Check(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.ping(ctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		s.log.WithError(err).Warn("store ping failed")
	}
	s.Health.SetServingStatus("", st)
	s.Health.SetServingStatus(ServiceName, st)
}

// Watch re-checks the store until ctx is done.
func (s *GRPCServer) Watch(ctx context.Context) {
	s.Check(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Run serves on addr until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	srv := s.Server()
	go s.Watch(ctx)
	go func() {
		<-ctx.Done()
		s.Health.Shutdown()
		srv.GracefulStop()
	}()

	s.log.WithField("addr", addr).Info("grpc server listening")
	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

func (s *GRPCServer) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.WithFields(logrus.Fields{
		"method":  info.FullMethod,
		"code":    status.Code(err),
		"latency": time.Since(start),
	}).Debug("grpc call")
	return resp, err
}
