package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Availability errors.
const (
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeConnectionFailed   ErrorCode = "CONNECTION_FAILED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
)

// Mesh errors.
const (
	// ErrCodeConnectivity means no candidate endpoint answered a health check.
	ErrCodeConnectivity ErrorCode = "CONNECTIVITY_ERROR"
	// ErrCodeRoutingUnavailable means the peer registry was empty.
	ErrCodeRoutingUnavailable ErrorCode = "ROUTING_UNAVAILABLE"
	// ErrCodeForwarding means the chosen peer failed the forwarded request.
	ErrCodeForwarding ErrorCode = "FORWARDING_ERROR"
	// ErrCodeAnnounceRejected means an admission check refused an announce.
	ErrCodeAnnounceRejected ErrorCode = "ANNOUNCE_REJECTED"
)

// Request errors.
const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
)

// Internal errors.
const (
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeConnectionFailed:   true,
	ErrCodeTimeout:            true,
	ErrCodeConnectivity:       true,
	ErrCodeRoutingUnavailable: true,
	ErrCodeExternalService:    true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
