// Package server runs a node's gRPC listener as a lifecycle component.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/kbukum/infermesh/component"
	grpccfg "github.com/kbukum/infermesh/grpc"
	"github.com/kbukum/infermesh/grpc/interceptor"
	"github.com/kbukum/infermesh/logger"
)

// Server wraps a grpc.Server and the standard health service. Every service
// registered before Start is reported SERVING once the listener is up and
// NOT_SERVING as soon as Stop begins.
type Server struct {
	cfg    grpccfg.ServerConfig
	log    *logger.Logger
	grpc   *grpc.Server
	health *health.Server

	mu       sync.Mutex
	listener net.Listener
	serving  bool
}

var _ component.Component = (*Server)(nil)

// Option customizes a Server.
type Option func(*Server)

// WithListener serves on lis instead of binding cfg.Address().
func WithListener(lis net.Listener) Option {
	return func(s *Server) { s.listener = lis }
}

// New creates a server. Register services through Registrar before Start.
func New(cfg grpccfg.ServerConfig, log *logger.Logger, opts ...Option) *Server {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("grpc")

	s := &Server{
		cfg:    cfg,
		log:    log,
		health: health.NewServer(),
		grpc: grpc.NewServer(grpc.ChainUnaryInterceptor(
			interceptor.UnaryServerErrorInterceptor(),
			interceptor.UnaryServerLoggingInterceptor(log),
		)),
	}
	for _, opt := range opts {
		opt(s)
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Registrar exposes the underlying server for service registration.
func (s *Server) Registrar() grpc.ServiceRegistrar { return s.grpc }

// Drain reports NOT_SERVING while still answering calls, so peers stop
// counting on this node before it goes away. Stop drains too.
func (s *Server) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serving {
		s.setServing(healthpb.HealthCheckResponse_NOT_SERVING)
		s.log.Info("gRPC health set to NOT_SERVING")
	}
}

func (s *Server) Name() string { return "grpc-server" }

// Start binds the listener and serves in a goroutine.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serving {
		return fmt.Errorf("grpc server already started")
	}
	if s.listener == nil {
		lis, err := net.Listen("tcp", s.cfg.Address())
		if err != nil {
			return fmt.Errorf("grpc server failed to bind %s: %w", s.cfg.Address(), err)
		}
		s.listener = lis
	}

	s.setServing(healthpb.HealthCheckResponse_SERVING)
	s.serving = true

	lis := s.listener
	go func() {
		if err := s.grpc.Serve(lis); err != nil {
			s.log.Error("grpc server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()
	s.log.Info("gRPC server started", logger.Fields("addr", lis.Addr().String()))
	return nil
}

// Stop reports NOT_SERVING, then drains in-flight calls for at most the
// grace period or until ctx ends, whichever is first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.serving {
		s.mu.Unlock()
		return nil
	}
	s.serving = false
	s.mu.Unlock()

	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(s.cfg.GracePeriod)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		s.grpc.Stop()
	case <-ctx.Done():
		s.grpc.Stop()
	}
	s.log.Info("gRPC server stopped")
	return nil
}

func (s *Server) Health(_ context.Context) component.Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.serving {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: "not serving"}
	}
	return component.Health{Name: s.Name(), Status: component.StatusHealthy}
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address()
}

func (s *Server) setServing(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	for name := range s.grpc.GetServiceInfo() {
		if name == healthpb.Health_ServiceDesc.ServiceName {
			continue
		}
		s.health.SetServingStatus(name, st)
	}
}
