package rpc

import (
	"net"

	"PPRealtime/tools/errs"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes grpc.health.v1 for load balancers and the probe below.
type HealthServer struct {
	srv     *grpc.Server
	health  *health.Server
	service string
	log     *zap.Logger
}

func NewHealthServer(service string, log *zap.Logger) *HealthServer {
	if log == nil {
		log = zap.NewNop()
	}
	hs := health.NewServer()
	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)

	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
	return &HealthServer{srv: srv, health: hs, service: service, log: log}
}

// Serve blocks until Stop.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()), zap.String("service", s.service))
	if err := s.srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return errs.WrapMsg(err, "grpc serve")
	}
	return nil
}

func (s *HealthServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errs.WrapMsg(err, "grpc listen", "addr", addr)
	}
	return s.Serve(lis)
}

// SetServing flips the status of the named service, e.g. while draining.
func (s *HealthServer) SetServing(ok bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ok {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(s.service, st)
}

// Stop marks everything NOT_SERVING and drains in-flight calls.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
