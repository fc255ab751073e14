package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/kbukum/infermesh/logger"
)

// MeterName is the instrumentation scope for node metrics.
const MeterName = "github.com/kbukum/infermesh"

// InitMeter creates an OTLP/HTTP meter provider and installs it globally.
// The caller shuts it down on exit.
func InitMeter(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		logger.FieldService, cfg.ServiceName,
		logger.FieldEndpoint, cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))
	return mp, nil
}

func newResource(cfg Config) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the node's instruments.
type Metrics struct {
	probeTotal      metric.Int64Counter
	probeDuration   metric.Float64Histogram
	evictionTotal   metric.Int64Counter
	meshPeers       metric.Int64Gauge
	announceTotal   metric.Int64Counter
	proxyTotal      metric.Int64Counter
	proxyDuration   metric.Float64Histogram
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.probeTotal, err = meter.Int64Counter("mesh.probe.total",
		metric.WithDescription("Health probes by result")); err != nil {
		return nil, fmt.Errorf("creating mesh.probe.total counter: %w", err)
	}
	if m.probeDuration, err = meter.Float64Histogram("mesh.probe.duration",
		metric.WithDescription("Duration of health probes in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating mesh.probe.duration histogram: %w", err)
	}
	if m.evictionTotal, err = meter.Int64Counter("mesh.peer.evictions",
		metric.WithDescription("Peers evicted by the prober, by reason")); err != nil {
		return nil, fmt.Errorf("creating mesh.peer.evictions counter: %w", err)
	}
	if m.meshPeers, err = meter.Int64Gauge("mesh.peers",
		metric.WithDescription("Peers in the local registry, self included")); err != nil {
		return nil, fmt.Errorf("creating mesh.peers gauge: %w", err)
	}
	if m.announceTotal, err = meter.Int64Counter("mesh.announce.total",
		metric.WithDescription("Inbound announcements by result")); err != nil {
		return nil, fmt.Errorf("creating mesh.announce.total counter: %w", err)
	}
	if m.proxyTotal, err = meter.Int64Counter("mesh.proxy.total",
		metric.WithDescription("Proxied inference requests by status")); err != nil {
		return nil, fmt.Errorf("creating mesh.proxy.total counter: %w", err)
	}
	if m.proxyDuration, err = meter.Float64Histogram("mesh.proxy.duration",
		metric.WithDescription("Duration of proxied requests in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating mesh.proxy.duration histogram: %w", err)
	}
	if m.requestTotal, err = meter.Int64Counter("http.request.total",
		metric.WithDescription("HTTP requests by route and status")); err != nil {
		return nil, fmt.Errorf("creating http.request.total counter: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("http.request.duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating http.request.duration histogram: %w", err)
	}
	return &m, nil
}

// NopMetrics returns instruments backed by a no-op meter.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(MeterName))
	return m
}

// RecordProbe records one health check; result is "serving",
// "not_serving" or "error".
func (m *Metrics) RecordProbe(ctx context.Context, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.probeTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	m.probeDuration.Record(ctx, d.Seconds())
}

// RecordEviction counts a peer removed by the prober.
func (m *Metrics) RecordEviction(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.evictionTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// SetPeerCount records the registry size.
func (m *Metrics) SetPeerCount(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.meshPeers.Record(ctx, int64(n))
}

// RecordAnnounce counts an inbound announcement.
func (m *Metrics) RecordAnnounce(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.announceTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordProxy records a proxied request and the status returned to the
// caller.
func (m *Metrics) RecordProxy(ctx context.Context, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.proxyTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", strconv.Itoa(status))))
	m.proxyDuration.Record(ctx, d.Seconds())
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
	}
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.Int("status", status))...))
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}
