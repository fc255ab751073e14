package interceptor

import (
	"context"
	"path"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/kbukum/infermesh/logger"
)

func callFields(method, target string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"service":            path.Dir(method)[1:],
		"method":             path.Base(method),
		logger.FieldTarget:   target,
		logger.FieldDuration: d.Milliseconds(),
	}
}

// UnaryClientLoggingInterceptor logs each outbound call at debug level and
// failures at warn. Peer failures are routine in a mesh, so they are not
// logged as errors here.
func UnaryClientLoggingInterceptor(log *logger.Logger) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		fields := callFields(method, cc.Target(), time.Since(start))
		if err != nil {
			st := status.Convert(err)
			fields[logger.FieldStatus] = st.Code().String()
			fields[logger.FieldError] = st.Message()
			log.Warn("gRPC call failed", fields)
			return err
		}
		fields[logger.FieldStatus] = "OK"
		log.Debug("gRPC call completed", fields)
		return nil
	}
}

// UnaryServerLoggingInterceptor logs each handled call.
func UnaryServerLoggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := callFields(info.FullMethod, "", time.Since(start))
		delete(fields, logger.FieldTarget)
		if err != nil {
			st := status.Convert(err)
			fields[logger.FieldStatus] = st.Code().String()
			fields[logger.FieldError] = st.Message()
			log.Warn("gRPC request failed", fields)
		} else {
			fields[logger.FieldStatus] = "OK"
			log.Debug("gRPC request handled", fields)
		}
		return resp, err
	}
}
