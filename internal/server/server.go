// Package server exposes service.Service over grpc and owns the
// serve-until-shutdown loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"finance-server-go/api/finance"
	"finance-server-go/internal/service"
)

type Options struct {
	// DrainTimeout bounds GracefulStop; after it the server is stopped hard.
	DrainTimeout time.Duration
	// KeepaliveTime/KeepaliveTimeout make the transport cancel calls whose
	// peer stopped responding, which in turn ends their stream sessions.
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	Logger           *zap.Logger
	Metrics          RPCMetrics
}

func DefaultOptions() Options {
	return Options{
		DrainTimeout:     10 * time.Second,
		KeepaliveTime:    30 * time.Second,
		KeepaliveTimeout: 10 * time.Second,
	}
}

type nopRPCMetrics struct{}

func (nopRPCMetrics) RecordRPC(string, string, float64) {}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	opts   Options
	log    *zap.Logger

	drainCtx context.Context
	drain    context.CancelFunc

	mu  sync.Mutex
	lis net.Listener

	stopOnce sync.Once
}

func New(svc *service.Service, opts Options) *Server {
	def := DefaultOptions()
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = def.DrainTimeout
	}
	if opts.KeepaliveTime <= 0 {
		opts.KeepaliveTime = def.KeepaliveTime
	}
	if opts.KeepaliveTimeout <= 0 {
		opts.KeepaliveTimeout = def.KeepaliveTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRPCMetrics{}
	}
	log := opts.Logger

	unary := []grpc.UnaryServerInterceptor{
		hookUnary(svc.Hook()),
		metricsUnary(opts.Metrics),
		loggingUnary(log),
	}
	streams := []grpc.StreamServerInterceptor{
		hookStream(svc.Hook()),
		metricsStream(opts.Metrics),
		loggingStream(log),
	}

	// 客户端请求使用 application/grpc+json，按 content-subtype 选中 finance.Codec；
	// 健康检查仍走默认的 proto 编码。
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(streams...),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    opts.KeepaliveTime,
			Timeout: opts.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	drainCtx, drain := context.WithCancel(context.Background())
	finance.RegisterStockServiceServer(gs, &handler{svc: svc, log: log, draining: drainCtx})

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(finance.ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return &Server{
		grpc:     gs,
		health:   hs,
		opts:     opts,
		log:      log,
		drainCtx: drainCtx,
		drain:    drain,
	}
}

// Listen binds host:port. A bind failure is returned to the caller and is
// meant to abort startup.
func (s *Server) Listen(host string, port int) (net.Addr, error) {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()
	return lis.Addr(), nil
}

// Serve blocks on lis, or on the listener from Listen when lis is nil. It
// returns nil after a graceful or hard stop.
func (s *Server) Serve(lis net.Listener) error {
	if lis == nil {
		s.mu.Lock()
		lis = s.lis
		s.mu.Unlock()
	}
	if lis == nil {
		return errors.New("server: no listener, call Listen first")
	}
	s.log.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Run serves lis until ctx is done or stop is closed, then drains.
func (s *Server) Run(ctx context.Context, lis net.Listener, stop <-chan struct{}) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("context done, draining")
	case <-stop:
		s.log.Info("shutdown signal received, draining")
	}
	s.Shutdown()
	return <-errCh
}

// Shutdown marks the service NOT_SERVING, ends open streams and waits up to
// DrainTimeout for in-flight calls before forcing the stop. Safe to call more
// than once.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		s.health.Shutdown()
		s.drain()

		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
			s.log.Info("grpc server drained")
		case <-time.After(s.opts.DrainTimeout):
			s.log.Warn("drain timeout, forcing stop", zap.Duration("timeout", s.opts.DrainTimeout))
			s.grpc.Stop()
			<-done
		}
	})
}

// Draining is closed once Shutdown has begun.
func (s *Server) Draining() <-chan struct{} { return s.drainCtx.Done() }
