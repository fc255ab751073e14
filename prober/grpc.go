package prober

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpccfg "github.com/kbukum/infermesh/grpc"
	"github.com/kbukum/infermesh/grpc/client"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/peer"
)

// GRPCChecker calls grpc.health.v1.Health/Check for the server as a whole.
// It keeps one connection per peer until the peer is forgotten.
type GRPCChecker struct {
	cfg      grpccfg.Config
	log      *logger.Logger
	dialOpts []grpc.DialOption

	mu    sync.Mutex
	conns map[peer.Address]*grpc.ClientConn
}

var _ Checker = (*GRPCChecker)(nil)

func NewGRPCChecker(cfg grpccfg.Config, log *logger.Logger, opts ...grpc.DialOption) *GRPCChecker {
	if log == nil {
		log = logger.Nop()
	}
	return &GRPCChecker{cfg: cfg, log: log, dialOpts: opts, conns: make(map[peer.Address]*grpc.ClientConn)}
}

func (c *GRPCChecker) Check(ctx context.Context, addr peer.Address) (Status, error) {
	conn, err := c.conn(addr)
	if err != nil {
		return StatusUnknown, err
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return StatusUnknown, err
	}
	switch resp.GetStatus() {
	case healthpb.HealthCheckResponse_SERVING:
		return StatusServing, nil
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return StatusNotServing, nil
	default:
		return StatusUnknown, nil
	}
}

func (c *GRPCChecker) conn(addr peer.Address) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}
	conn, err := client.Dial(client.Target(addr.String()), c.cfg, c.log, c.dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conns[addr] = conn
	return conn, nil
}

// Forget closes and drops the connection to addr.
func (c *GRPCChecker) Forget(addr peer.Address) {
	c.mu.Lock()
	conn := c.conns[addr]
	delete(c.conns, addr)
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Close closes every cached connection.
func (c *GRPCChecker) Close() error {
	n := c.cached()
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[peer.Address]*grpc.ClientConn)
	c.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
	c.log.Debug("health checker closed", logger.Fields(logger.FieldCount, n))
	return nil
}

func (c *GRPCChecker) cached() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}
