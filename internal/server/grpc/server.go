package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/logging"
	"github.com/dmitrijs2005/cardflow/internal/server/probes"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name the auth core reports under, in
// addition to the overall "" entry.
const ServiceName = "cardflow.auth"

const defaultInterval = 10 * time.Second

type GRPCServer struct {
	address  string
	probes   probes.Set
	interval time.Duration
	health   *health.Server
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, p probes.Set, interval time.Duration) *GRPCServer {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &GRPCServer{
		address:  a,
		probes:   p,
		interval: interval,
		health:   health.NewServer(),
		logger:   l.With("module", "grpc_server"),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {

	// creates gRPC-server
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))

	// registers service
	healthpb.RegisterHealthServer(srv, s.health)

	s.refresh(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

// watch re-runs the probes every interval until ctx is done.
func (s *GRPCServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *GRPCServer) refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	for name, err := range s.probes.Check(ctx) {
		s.logger.Warn(ctx, "readiness probe failed", "probe", name, "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if ctx.Err() != nil {
		return
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
