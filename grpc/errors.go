package grpc

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/kbukum/infermesh/errors"
)

// FromGRPC converts an error returned by a call to target into an AppError.
func FromGRPC(err error, target string) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(target).WithCause(err)
	}

	st, ok := status.FromError(err)
	if !ok {
		return apperrors.ConnectionFailed(target).WithCause(err)
	}

	switch st.Code() {
	case codes.Unavailable:
		return apperrors.ConnectionFailed(target).WithCause(err)
	case codes.DeadlineExceeded:
		return apperrors.Timeout(target).WithCause(err)
	case codes.PermissionDenied:
		return apperrors.AnnounceRejected(target, st.Message()).WithCause(err)
	case codes.InvalidArgument:
		return apperrors.InvalidInput("", st.Message()).WithCause(err)
	case codes.NotFound, codes.Unimplemented:
		return apperrors.NotFound(st.Message()).WithCause(err)
	case codes.Canceled:
		return (&apperrors.AppError{
			Code:       apperrors.ErrCodeInternal,
			Message:    "The request was cancelled.",
			HTTPStatus: http.StatusRequestTimeout,
		}).WithCause(err)
	default:
		return apperrors.Internal(err)
	}
}

// ToGRPCStatus converts an AppError to a gRPC status error.
func ToGRPCStatus(appErr *apperrors.AppError) error {
	if appErr == nil {
		return nil
	}

	var code codes.Code
	switch appErr.Code {
	case apperrors.ErrCodeNotFound:
		code = codes.NotFound
	case apperrors.ErrCodeInvalidInput:
		code = codes.InvalidArgument
	case apperrors.ErrCodeForbidden, apperrors.ErrCodeAnnounceRejected:
		code = codes.PermissionDenied
	case apperrors.ErrCodeTimeout:
		code = codes.DeadlineExceeded
	case apperrors.ErrCodeServiceUnavailable, apperrors.ErrCodeConnectionFailed,
		apperrors.ErrCodeConnectivity, apperrors.ErrCodeRoutingUnavailable:
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, appErr.Message)
}

// IsRetryableCode reports whether a status code is usually transient.
func IsRetryableCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}
