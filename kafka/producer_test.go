package kafka

import (
	"context"
	"encoding/json"
	"testing"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/infermesh/component"
)

func TestConfig_DefaultsAndValidate(t *testing.T) {
	cfg := Config{Topic: "infermesh.membership"}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Brokers[0] != "localhost:9092" || cfg.RequiredAcks != -1 || cfg.MaxAttempts != 3 {
		t.Errorf("defaults = %+v", cfg)
	}

	missing := Config{}
	missing.ApplyDefaults()
	if err := missing.Validate(); err == nil {
		t.Error("expected error without topic")
	}
}

func TestResolveCompression(t *testing.T) {
	tests := map[string]kafkago.Compression{
		"gzip":    kafkago.Gzip,
		"lz4":     kafkago.Lz4,
		"zstd":    kafkago.Zstd,
		"none":    0,
		"unknown": kafkago.Snappy,
	}
	for name, want := range tests {
		if got := ResolveCompression(name); got != want {
			t.Errorf("ResolveCompression(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestJSONMessage(t *testing.T) {
	msg, err := JSONMessage("node2:50051", map[string]string{"type": "peer.joined"})
	if err != nil {
		t.Fatalf("JSONMessage: %v", err)
	}
	if string(msg.Key) != "node2:50051" {
		t.Errorf("key = %q", msg.Key)
	}
	var body map[string]string
	if err := json.Unmarshal(msg.Value, &body); err != nil || body["type"] != "peer.joined" {
		t.Errorf("value = %s (%v)", msg.Value, err)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != "content-type" {
		t.Errorf("headers = %+v", msg.Headers)
	}

	if _, err := JSONMessage("k", make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestProducer_ClosedLifecycle(t *testing.T) {
	p, err := NewProducer(Config{Topic: "t"}, nil)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	ctx := context.Background()
	if h := p.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("health = %+v", h)
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := p.WriteMessages(ctx, kafkago.Message{Value: []byte("x")}); err == nil {
		t.Error("expected error writing to a closed producer")
	}
	if h := p.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("health after close = %+v", h)
	}
}
