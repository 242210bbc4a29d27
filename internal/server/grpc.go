// Package server hosts the gRPC health surface of the review service.
package server

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "docreview.v1.DocumentReviewService"

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// Config configures the gRPC server.
type Config struct {
	Address       string
	CheckInterval time.Duration
	CheckTimeout  time.Duration
}

// GRPCServer serves grpc.health.v1 and reflection. The reported status
// follows the registered dependency checks.
type GRPCServer struct {
	cfg    Config
	grpc   *grpc.Server
	health *health.Server
	checks map[string]Check
	logger zerolog.Logger

	mu       sync.Mutex
	serving  bool
	stopOnce sync.Once
	done     chan struct{}
}

// NewGRPCServer builds the server. Nothing listens until Serve is called.
func NewGRPCServer(cfg Config, checks map[string]Check, logger zerolog.Logger) *GRPCServer {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 15 * time.Second
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 5 * time.Second
	}
	logger = logger.With().Str("component", "grpc").Logger()

	srv := grpc.NewServer(
		grpc.MaxConcurrentStreams(100),
		grpc.ChainUnaryInterceptor(
			recoveryUnaryInterceptor(logger),
			loggingUnaryInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			recoveryStreamInterceptor(logger),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Minute,
			Time:                  5 * time.Minute,
			Timeout:               1 * time.Minute,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Minute,
			PermitWithoutStream: true,
		}),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &GRPCServer{
		cfg:    cfg,
		grpc:   srv,
		health: hs,
		checks: checks,
		logger: logger,
		done:   make(chan struct{}),
	}
	s.setServing(false)
	return s
}

// Server exposes the underlying grpc.Server for registering extra services.
func (s *GRPCServer) Server() *grpc.Server {
	return s.grpc
}

// Serve listens on the configured address and blocks until the server stops.
func (s *GRPCServer) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on gRPC address %s: %w", s.cfg.Address, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis and runs the health checks until the server stops.
func (s *GRPCServer) ServeListener(ctx context.Context, lis net.Listener) error {
	s.Refresh(ctx)
	go s.watch(ctx)

	s.logger.Info().Str("address", lis.Addr().String()).Msg("gRPC server starting")
	if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// Refresh runs every check once and updates the reported status.
func (s *GRPCServer) Refresh(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ok := true
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			ok = false
			s.logger.Warn().Err(err).Str("check", name).Msg("dependency unhealthy")
		}
	}
	s.setServing(ok)
	return ok
}

func (s *GRPCServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *GRPCServer) setServing(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	if ok != s.serving {
		s.logger.Info().Str("status", st.String()).Msg("health status changed")
	}
	s.serving = ok
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Shutdown marks the server NOT_SERVING and stops it gracefully. When ctx
// expires first, open streams are closed forcibly.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.done)
		s.health.Shutdown()

		stopped := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
			s.logger.Info().Msg("gRPC server stopped gracefully")
		case <-ctx.Done():
			s.logger.Warn().Msg("gRPC server forced shutdown due to timeout")
			s.grpc.Stop()
		}
	})
}

func loggingUnaryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		event := logger.Debug()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("grpc request")
		return resp, err
	}
}

func recoveryUnaryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Str("method", info.FullMethod).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic in gRPC handler")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func recoveryStreamInterceptor(logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Str("method", info.FullMethod).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic in gRPC stream")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(srv, ss)
	}
}
