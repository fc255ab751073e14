package interceptor

import (
	"context"

	"google.golang.org/grpc"

	apperrors "github.com/kbukum/infermesh/errors"
	grpcx "github.com/kbukum/infermesh/grpc"
)

// UnaryServerErrorInterceptor converts AppError results into gRPC statuses
// so handlers can return domain errors directly.
func UnaryServerErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		resp, err := handler(ctx, req)
		if appErr, ok := apperrors.AsAppError(err); ok {
			return resp, grpcx.ToGRPCStatus(appErr)
		}
		return resp, err
	}
}
