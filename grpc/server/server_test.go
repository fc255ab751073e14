package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/kbukum/infermesh/component"
	grpccfg "github.com/kbukum/infermesh/grpc"
	"github.com/kbukum/infermesh/grpc/client"
)

func TestServer_HealthLifecycle(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := New(grpccfg.ServerConfig{}, nil, WithListener(lis))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if h := srv.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("health before start = %s", h.Status)
	}
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	conn, err := client.Dial("passthrough:///bufnet", grpccfg.Config{}, nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %s, want SERVING", resp.GetStatus())
	}

	srv.Drain()
	drained, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check while draining: %v", err)
	}
	if drained.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status while draining = %s, want NOT_SERVING", drained.GetStatus())
	}

	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	after, err := srv.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("local Check: %v", err)
	}
	if after.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after Stop = %s, want NOT_SERVING", after.GetStatus())
	}
	if err := srv.Stop(ctx); err != nil {
		t.Errorf("second Stop should be a no-op: %v", err)
	}
}
