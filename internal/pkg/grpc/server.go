// Package grpc exposes the service's gRPC side: the standard health protocol
// for load balancers and orchestrators.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the health-check service name reported for the room API.
const ServiceName = "interviewroom.Rooms"

type Server struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	logger   *zap.Logger
}

func NewServer(address string, log *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return NewServerWithListener(listener, log), nil
}

// NewServerWithListener serves on an existing listener, e.g. bufconn in tests.
func NewServerWithListener(listener net.Listener, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{listener: listener, logger: log, health: health.NewServer()}
	s.server = grpc.NewServer(
		grpc.UnaryInterceptor(s.unaryLoggingInterceptor),
		grpc.StreamInterceptor(s.streamLoggingInterceptor),
	)
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) unaryLoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	start := time.Now()
	resp, err = handler(ctx, req)
	s.logger.Debug("gRPC call",
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.String("code", status.Code(err).String()))
	return resp, err
}

func (s *Server) streamLoggingInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	code := status.Code(err)
	// Watch streams end with Canceled when the client goes away
	level := s.logger.Debug
	if code != codes.OK && code != codes.Canceled {
		level = s.logger.Warn
	}
	level("gRPC stream call",
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.String("code", code.String()))
	return err
}

// SetServing flips both the overall and the room service status.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func (s *Server) Start() error {
	s.logger.Info("starting gRPC server", zap.String("address", s.listener.Addr().String()))
	return s.server.Serve(s.listener)
}

// Stop marks everything NOT_SERVING, then drains in-flight RPCs until ctx
// expires and forces the rest closed.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping gRPC server")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}

// GetServer exposes the underlying server for registering more services.
func (s *Server) GetServer() *grpc.Server {
	return s.server
}
