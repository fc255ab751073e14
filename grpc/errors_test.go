package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/kbukum/infermesh/errors"
)

func TestFromGRPC_Table(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.ErrorCode
	}{
		{"unavailable", status.Error(codes.Unavailable, "connection refused"), apperrors.ErrCodeConnectionFailed},
		{"deadline status", status.Error(codes.DeadlineExceeded, "slow"), apperrors.ErrCodeTimeout},
		{"deadline context", fmt.Errorf("call: %w", context.DeadlineExceeded), apperrors.ErrCodeTimeout},
		{"permission denied", status.Error(codes.PermissionDenied, "not allowed"), apperrors.ErrCodeAnnounceRejected},
		{"invalid argument", status.Error(codes.InvalidArgument, "empty"), apperrors.ErrCodeInvalidInput},
		{"unimplemented", status.Error(codes.Unimplemented, "unknown service"), apperrors.ErrCodeNotFound},
		{"internal", status.Error(codes.Internal, "boom"), apperrors.ErrCodeInternal},
		{"plain error", errors.New("dial tcp: refused"), apperrors.ErrCodeConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromGRPC(tt.err, "node2:50051")
			if got.Code != tt.want {
				t.Errorf("code = %s, want %s", got.Code, tt.want)
			}
			if !errors.Is(got, tt.err) && got.Cause == nil {
				t.Error("expected the original error as cause")
			}
		})
	}

	if FromGRPC(nil, "x") != nil {
		t.Error("nil in, nil out")
	}
}

func TestToGRPCStatus_RoundTrip(t *testing.T) {
	tests := []struct {
		err  *apperrors.AppError
		code codes.Code
	}{
		{apperrors.AnnounceRejected("x:1", "nope"), codes.PermissionDenied},
		{apperrors.InvalidInput("address", "empty"), codes.InvalidArgument},
		{apperrors.RoutingUnavailable(), codes.Unavailable},
		{apperrors.Timeout("probe"), codes.DeadlineExceeded},
		{apperrors.Internal(nil), codes.Internal},
	}
	for _, tt := range tests {
		st, _ := status.FromError(ToGRPCStatus(tt.err))
		if st.Code() != tt.code {
			t.Errorf("%s -> %s, want %s", tt.err.Code, st.Code(), tt.code)
		}
	}

	back := FromGRPC(ToGRPCStatus(apperrors.AnnounceRejected("x:1", "nope")), "x:1")
	if !apperrors.IsAnnounceRejected(back) {
		t.Errorf("AnnounceRejected should survive the wire, got %s", back.Code)
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	var sc ServerConfig
	sc.ApplyDefaults()
	if sc.Address() != "0.0.0.0:50051" {
		t.Errorf("Address = %q", sc.Address())
	}
	sc.Port = 70000
	if err := sc.Validate(); err == nil {
		t.Error("expected port validation error")
	}
}

func TestIsRetryableCode(t *testing.T) {
	if !IsRetryableCode(codes.Unavailable) || IsRetryableCode(codes.PermissionDenied) {
		t.Error("unexpected retryability")
	}
}
