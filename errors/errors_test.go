package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Retryable(t *testing.T) {
	if !New(ErrCodeTimeout, "slow", http.StatusGatewayTimeout).Retryable {
		t.Error("TIMEOUT should be retryable")
	}
	if New(ErrCodeInvalidInput, "bad", http.StatusBadRequest).Retryable {
		t.Error("INVALID_INPUT should not be retryable")
	}
}

func TestAppError_Error_Format(t *testing.T) {
	err := New(ErrCodeInternal, "broken", http.StatusInternalServerError)
	if got := err.Error(); got != "INTERNAL_ERROR: broken" {
		t.Errorf("unexpected message %q", got)
	}
	err.WithCause(fmt.Errorf("disk"))
	if !strings.Contains(err.Error(), "cause: disk") {
		t.Errorf("cause missing from %q", err.Error())
	}
}

func TestAppError_Unwrap(t *testing.T) {
	root := stderrors.New("root")
	err := ExternalServiceError("generator", root)
	if !stderrors.Is(err, root) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestMeshConstructors_Table(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		code      ErrorCode
		status    int
		retryable bool
	}{
		{"connectivity", Connectivity([]string{"http://a", "http://b"}), ErrCodeConnectivity, http.StatusServiceUnavailable, true},
		{"routing unavailable", RoutingUnavailable(), ErrCodeRoutingUnavailable, http.StatusServiceUnavailable, true},
		{"forwarding peer 500", Forwarding("b:50051", 500, []byte("oops"), nil), ErrCodeForwarding, 500, false},
		{"forwarding peer 422", Forwarding("b:50051", 422, nil, nil), ErrCodeForwarding, 422, false},
		{"forwarding transport", Forwarding("b:50051", 0, nil, stderrors.New("refused")), ErrCodeForwarding, http.StatusBadGateway, false},
		{"announce rejected", AnnounceRejected("x:1", "not allowed"), ErrCodeAnnounceRejected, http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.HTTPStatus != tt.status {
				t.Errorf("status = %d, want %d", tt.err.HTTPStatus, tt.status)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
		})
	}
}

func TestConnectivity_NamesCandidates(t *testing.T) {
	err := Connectivity([]string{"http://a:8000", "http://b:8000"})
	if !strings.Contains(err.Message, "http://a:8000") || !strings.Contains(err.Message, "http://b:8000") {
		t.Errorf("message should name candidates: %q", err.Message)
	}
}

func TestForwarding_KeepsPeerBody(t *testing.T) {
	err := Forwarding("b:50051", 500, []byte(`{"detail":"oom"}`), nil)
	if err.Details["peer_body"] != `{"detail":"oom"}` {
		t.Errorf("peer_body = %v", err.Details["peer_body"])
	}
	if err.Details["peer_status"] != 500 {
		t.Errorf("peer_status = %v", err.Details["peer_status"])
	}
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("route: %w", RoutingUnavailable())
	if !IsRoutingUnavailable(wrapped) {
		t.Error("expected wrapped RoutingUnavailable to match")
	}
	if IsForwarding(wrapped) || IsConnectivity(wrapped) || IsAnnounceRejected(wrapped) {
		t.Error("unexpected predicate match")
	}
	if IsConnectivity(stderrors.New("plain")) {
		t.Error("plain errors never match")
	}
}

func TestInvalidInput_FieldDetail(t *testing.T) {
	if _, ok := InvalidInput("", "empty").Details["field"]; ok {
		t.Error("expected no field detail")
	}
	if InvalidInput("model", "unknown").Details["field"] != "model" {
		t.Error("expected field detail")
	}
}

func TestAppError_ToResponse(t *testing.T) {
	resp := RoutingUnavailable().ToResponse()
	if resp.Error.Code != ErrCodeRoutingUnavailable || resp.Error.Message != "No healthy nodes available" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestParseResponse(t *testing.T) {
	body, err := json.Marshal(RoutingUnavailable().ToResponse())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, ok := ParseResponse(http.StatusServiceUnavailable, body)
	if !ok {
		t.Fatalf("ParseResponse(%s) not recognised", body)
	}
	if !IsRoutingUnavailable(got) || !got.Retryable || got.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("parsed = %+v", got)
	}

	for _, raw := range []string{`{"text":"relayed peer output"}`, `not json`, ``} {
		if _, ok := ParseResponse(http.StatusBadGateway, []byte(raw)); ok {
			t.Errorf("%q parsed as an error body", raw)
		}
	}
}

func TestAsAppError(t *testing.T) {
	if _, ok := AsAppError(stderrors.New("plain")); ok {
		t.Error("plain error should not convert")
	}
	appErr, ok := AsAppError(fmt.Errorf("x: %w", Timeout("announce")))
	if !ok || appErr.Code != ErrCodeTimeout {
		t.Errorf("unexpected %v %v", appErr, ok)
	}
	if !IsAppError(appErr) {
		t.Error("IsAppError should be true")
	}
}
