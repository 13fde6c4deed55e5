package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	dispatchv1 "github.com/rzbill/dispatch/api/dispatch/v1"
	"github.com/rzbill/dispatch/internal/runtime"
	dispatchsvc "github.com/rzbill/dispatch/internal/services/dispatch"
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	svc    *dispatchsvc.Service
	logger logpkg.Logger
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
}

// New constructs a gRPC server and registers services.
func New(rt *runtime.Runtime, svc *dispatchsvc.Service, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	s := &Server{
		rt:     rt,
		svc:    svc,
		logger: logger,
		health: health.NewServer(),
	}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.logUnary)}, opts...)
	s.grpc = grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	dispatchv1.RegisterDispatchServer(s.grpc, &dispatchSvc{svc: svc})
	s.refreshHealth(context.Background())
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	go s.watchHealth(ctx)
	s.logger.Info("grpc.listen", logpkg.Str("addr", l.Addr().String()))
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close marks the server not serving, stops it and closes the listener.
// Streaming subscribers must end first; closing the dispatch service does
// that.
func (s *Server) Close() {
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Debug("grpc.call", logpkg.Str("method", info.FullMethod), logpkg.Err(err))
	}
	return resp, err
}
