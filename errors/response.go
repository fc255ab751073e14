package errors

import (
	"encoding/json"
	stderrors "errors"
)

// ErrorResponse is the JSON error body every node endpoint writes.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the client-visible part of an AppError.
type ErrorBody struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToResponse converts an AppError to its JSON body.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: ErrorBody{
		Code:      e.Code,
		Message:   e.Message,
		Retryable: e.Retryable,
		Details:   e.Details,
	}}
}

// ParseResponse rebuilds the AppError a node answered with, so a client on
// the other side of a gateway sees the same code. ok is false when body is
// not an error body, e.g. a peer's own payload relayed by the router.
func ParseResponse(status int, body []byte) (appErr *AppError, ok bool) {
	var r ErrorResponse
	if err := json.Unmarshal(body, &r); err != nil || r.Error.Code == "" {
		return nil, false
	}
	return &AppError{
		Code:       r.Error.Code,
		Message:    r.Error.Message,
		Retryable:  r.Error.Retryable,
		HTTPStatus: status,
		Details:    r.Error.Details,
	}, true
}

// IsAppError reports whether err wraps an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError unwraps err to an AppError.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
