// Package grpc holds the gRPC plumbing shared by mesh nodes: dial and
// server configuration, AppError <-> status mapping, and a lifecycle-managed
// Server that also serves the standard grpc.health.v1 protocol.
//
// The client sub-package builds outbound connections; the interceptor
// sub-package provides logging and timeout interceptors.
package grpc
