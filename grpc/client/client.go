// Package client dials outbound gRPC connections to mesh peers.
package client

import (
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	grpccfg "github.com/kbukum/infermesh/grpc"
	"github.com/kbukum/infermesh/grpc/interceptor"
	"github.com/kbukum/infermesh/logger"
)

// Dial creates a client connection to target. The connection is lazy:
// no I/O happens until the first RPC. extra options are appended last,
// so tests can swap the dialer.
func Dial(target string, cfg grpccfg.Config, log *logger.Logger, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("grpc client config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	opts := append(dialOptions(cfg, log), extra...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc: create client for %s: %w", target, err)
	}
	return conn, nil
}

// dialOptions assembles options from config: plaintext transport, keepalive,
// message limits, then the timeout and logging interceptors in that order.
func dialOptions(cfg grpccfg.Config, log *logger.Logger) []grpc.DialOption {
	unary := []grpc.UnaryClientInterceptor{}
	if cfg.CallTimeout > 0 || len(cfg.MethodTimeouts) > 0 {
		unary = append(unary, interceptor.UnaryClientTimeoutInterceptor(cfg.CallTimeout, cfg.MethodTimeouts))
	}
	unary = append(unary, interceptor.UnaryClientLoggingInterceptor(log))

	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.Keepalive.Time,
			Timeout:             cfg.Keepalive.Timeout,
			PermitWithoutStream: cfg.Keepalive.PermitWithoutStream,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(cfg.MaxRecvMsgSize)),
		grpc.WithChainUnaryInterceptor(unary...),
	}
}

// Target turns a bare host:port peer address into a passthrough target, so
// the address reaches the dialer unchanged. Targets with a scheme are
// returned as is.
func Target(addr string) string {
	if strings.Contains(addr, ":///") {
		return addr
	}
	return "passthrough:///" + addr
}
