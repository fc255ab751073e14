package interceptor

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// UnaryClientTimeoutInterceptor bounds calls made without a deadline.
// perMethod is keyed by full method name (e.g. /grpc.health.v1.Health/Check)
// so a probe and an announce sharing one config each get their own bound;
// other methods get fallback. A zero bound leaves the call unbounded.
func UnaryClientTimeoutInterceptor(fallback time.Duration, perMethod map[string]time.Duration) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if _, ok := ctx.Deadline(); ok {
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		timeout := fallback
		if d, ok := perMethod[method]; ok {
			timeout = d
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
