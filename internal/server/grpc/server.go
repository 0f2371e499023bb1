package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/server/services"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Services are the operations exposed over gRPC.
type Services struct {
	Accounts   *services.AccountService
	Groups     *services.GroupService
	Membership *services.MembershipService
}

// RequestRecorder receives one observation per served call.
type RequestRecorder interface {
	RecordRequest(transport, operation, outcome string, d time.Duration)
}

type Options struct {
	// IdentityHeader is the metadata key that carries the caller's account id
	// for ReadAccount calls without an explicit id.
	IdentityHeader string
	Metrics        RequestRecorder
}

type GRPCServer struct {
	address        string
	svc            Services
	identityHeader string
	metrics        RequestRecorder
	logger         logging.Logger
	srv            *grpc.Server
	health         *health.Server
}

func NewGRPCServer(address string, l logging.Logger, svc Services, opts Options) *GRPCServer {
	s := &GRPCServer{
		address:        address,
		svc:            svc,
		identityHeader: opts.IdentityHeader,
		metrics:        opts.Metrics,
		logger:         l.With("module", "grpc_server"),
		health:         health.NewServer(),
	}

	s.srv = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(s.observeInterceptor, s.identityInterceptor),
	)
	s.srv.RegisterService(serviceDesc(), s)
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return s
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	err := s.srv.Serve(lis)
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	<-stopped
	return nil
}
