package rpc

import (
	"context"
	"time"

	"PPRealtime/tools/errs"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Probe asks target whether service is SERVING. Extra dial options are
// appended after the insecure transport (tests pass a bufconn dialer).
func Probe(ctx context.Context, target, service string, timeout time.Duration, opts ...grpc.DialOption) error {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return errs.WrapMsg(err, "dial", "target", target)
	}
	defer conn.Close()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return errs.WrapMsg(err, "health check", "target", target)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return errs.ErrUnavailable.WrapMsg("not serving", "service", service, "status", resp.GetStatus().String())
	}
	return nil
}
