package middleware_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kbukum/infermesh/httpclient"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/server/middleware"
)

// Recovery

func TestRecovery(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantLogged string
	}{
		{
			name: "passes through",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name: "forwarder panic",
			handler: func(http.ResponseWriter, *http.Request) {
				panic("forwarder exploded")
			},
			wantStatus: http.StatusInternalServerError,
			wantLogged: "forwarder exploded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, &logger.Config{Level: "debug", Format: "json"}, "test")
			rr := httptest.NewRecorder()
			middleware.Recovery(log)(tt.handler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/proxy-inference", http.NoBody))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantLogged == "" {
				if buf.Len() != 0 {
					t.Errorf("unexpected log output: %s", buf.String())
				}
				return
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != "Internal server error" {
				t.Errorf("error = %q", body["error"])
			}
			if !strings.Contains(buf.String(), tt.wantLogged) {
				t.Errorf("panic not logged: %s", buf.String())
			}
		})
	}
}

// RequestID

func TestRequestID_GeneratesID(t *testing.T) {
	handler := middleware.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(httpclient.HeaderRequestID)
		if id == "" {
			t.Error("expected X-Request-ID in request headers")
		}
		if got := logger.RequestIDFromContext(r.Context()); got != id {
			t.Errorf("context request ID = %q, header = %q", got, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", http.NoBody))

	if rr.Header().Get(httpclient.HeaderRequestID) == "" {
		t.Error("expected X-Request-ID in response headers")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	handler := middleware.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", http.NoBody)
	req.Header.Set(httpclient.HeaderRequestID, "existing-id")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get(httpclient.HeaderRequestID); got != "existing-id" {
		t.Errorf("expected existing-id, got %q", got)
	}
}

// RequestLogger

func TestRequestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, &logger.Config{Level: "debug", Format: "json"}, "test")
	handler := middleware.RequestLogger(log, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/proxy-inference", http.NoBody))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, "/proxy-inference") {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestRequestLogger_SkipsHealth(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, &logger.Config{Level: "debug", Format: "json"}, "test")
	called := false
	handler := middleware.RequestLogger(log, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/health", http.NoBody))

	if !called {
		t.Error("handler should still be called for health endpoints")
	}
	if buf.Len() != 0 {
		t.Errorf("health request was logged: %s", buf.String())
	}
}

// BodySizeLimit

func TestBodySizeLimit_RejectsLargeBody(t *testing.T) {
	handler := middleware.BodySizeLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/generate", strings.NewReader("0123456789")))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/generate", strings.NewReader("small")))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

// Chain

func TestChain_RequestIDReachesLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, &logger.Config{Level: "debug", Format: "json"}, "test")

	// RequestID must run before RequestLogger for the id to show up in the log line.
	handler := middleware.Chain(
		middleware.RequestID(),
		middleware.RequestLogger(log, nil),
	)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/proxy-inference", http.NoBody))

	id := rr.Header().Get(httpclient.HeaderRequestID)
	if id == "" {
		t.Fatal("missing request id on response")
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["request_id"] != id {
		t.Errorf("logged request_id = %v, want %s", entry["request_id"], id)
	}
	if entry["status"] != float64(http.StatusServiceUnavailable) {
		t.Errorf("logged status = %v", entry["status"])
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	h := middleware.Chain()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nodes", http.NoBody))
	if !called {
		t.Error("empty chain did not reach handler")
	}
}

// statusWriter

type flushingWriter struct {
	*httptest.ResponseRecorder
	flushes int
}

func (f *flushingWriter) Flush() { f.flushes++ }

func TestRequestLogger_KeepsFlusher(t *testing.T) {
	fw := &flushingWriter{ResponseRecorder: httptest.NewRecorder()}

	handler := middleware.RequestLogger(logger.Nop(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "partial")
		w.(http.Flusher).Flush()
	}))
	handler.ServeHTTP(fw, httptest.NewRequest(http.MethodPost, "/generate", http.NoBody))

	if fw.flushes != 1 {
		t.Errorf("flushes = %d, want 1", fw.flushes)
	}
	if fw.Body.String() != "partial" {
		t.Errorf("body = %q", fw.Body.String())
	}
}
