package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func jsonLogger(buf *bytes.Buffer, level string) *Logger {
	return NewWithWriter(buf, &Config{Level: level, Format: "json"}, "meshnode")
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", line, err)
	}
	return m
}

func TestNewWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, "info")

	l.WithComponent("prober").Info("peer evicted", Fields(FieldPeer, "node2:50051"))

	m := decodeLine(t, &buf)
	if m["message"] != "peer evicted" {
		t.Errorf("message = %v", m["message"])
	}
	if m[FieldService] != "meshnode" {
		t.Errorf("service = %v", m[FieldService])
	}
	if m[FieldComponent] != "prober" {
		t.Errorf("component = %v", m[FieldComponent])
	}
	if m[FieldPeer] != "node2:50051" {
		t.Errorf("peer = %v", m[FieldPeer])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, "warn")

	l.Info("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn output, got %q", buf.String())
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, "loud")
	l.Debug("hidden")
	l.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestWithErrorAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, "info")

	l.WithError(errors.New("boom")).WithFields(map[string]interface{}{FieldSeed: "a:1"}).Error("announce failed")

	m := decodeLine(t, &buf)
	if m[FieldError] != "boom" {
		t.Errorf("error = %v", m[FieldError])
	}
	if m[FieldSeed] != "a:1" {
		t.Errorf("seed = %v", m[FieldSeed])
	}
}

func TestWithContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, "info")

	ctx := ContextWithRequestID(context.Background(), "req-1")
	l.WithContext(ctx).Info("handled")

	m := decodeLine(t, &buf)
	if m[FieldRequestID] != "req-1" {
		t.Errorf("request_id = %v", m[FieldRequestID])
	}

	if got := l.WithContext(context.Background()); got != l {
		t.Error("expected same logger when context has no request ID")
	}
}

func TestFields(t *testing.T) {
	m := Fields("a", 1, 2, "skipped", "b", true, "dangling")
	if len(m) != 2 {
		t.Fatalf("expected 2 entries, got %v", m)
	}
	if m["a"] != 1 || m["b"] != true {
		t.Errorf("unexpected fields %v", m)
	}
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != "console" || cfg.Output != "stdout" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	cfg.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestGlobal(t *testing.T) {
	var buf bytes.Buffer
	prev := Global()
	defer SetGlobal(prev)

	SetGlobal(jsonLogger(&buf, "info"))
	Info("via global")
	if !strings.Contains(buf.String(), "via global") {
		t.Errorf("global logger not used: %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	Nop().Error("nothing")
}
