package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// Connectivity reports that every candidate endpoint failed its health check.
func Connectivity(candidates []string) *AppError {
	return &AppError{
		Code:       ErrCodeConnectivity,
		Message:    fmt.Sprintf("No reachable endpoint among [%s].", strings.Join(candidates, ", ")),
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Details:    map[string]any{"candidates": append([]string(nil), candidates...)},
	}
}

// RoutingUnavailable reports that there is no live peer to route to.
func RoutingUnavailable() *AppError {
	return &AppError{
		Code:       ErrCodeRoutingUnavailable,
		Message:    "No healthy nodes available",
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
	}
}

// Forwarding reports a failed forward to target. A peer response status in
// the 4xx/5xx range is kept so callers can relay it; anything else maps to 502.
// body is the peer's raw response and may be nil.
func Forwarding(target string, status int, body []byte, cause error) *AppError {
	httpStatus := status
	if httpStatus < 400 || httpStatus > 599 {
		httpStatus = http.StatusBadGateway
	}
	e := &AppError{
		Code:       ErrCodeForwarding,
		Message:    fmt.Sprintf("Failed to proxy to node %s", target),
		HTTPStatus: httpStatus,
		Details:    map[string]any{"target": target},
		Cause:      cause,
	}
	if status != 0 {
		e.Details["peer_status"] = status
	}
	if body != nil {
		e.Details["peer_body"] = string(body)
	}
	return e
}

// AnnounceRejected reports that an admission check refused addr.
func AnnounceRejected(addr, reason string) *AppError {
	return &AppError{
		Code:       ErrCodeAnnounceRejected,
		Message:    fmt.Sprintf("Announce from %s rejected: %s", addr, reason),
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]any{"address": addr},
	}
}

func hasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

func IsConnectivity(err error) bool       { return hasCode(err, ErrCodeConnectivity) }
func IsRoutingUnavailable(err error) bool { return hasCode(err, ErrCodeRoutingUnavailable) }
func IsForwarding(err error) bool         { return hasCode(err, ErrCodeForwarding) }
func IsAnnounceRejected(err error) bool   { return hasCode(err, ErrCodeAnnounceRejected) }
