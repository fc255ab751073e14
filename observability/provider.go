package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/infermesh/component"
)

// Provider owns the node's meter and tracer providers. When export is
// disabled it hands out no-op instruments and Start/Stop do nothing.
type Provider struct {
	cfg     Config
	mp      *sdkmetric.MeterProvider
	tp      *sdktrace.TracerProvider
	metrics *Metrics
}

var _ component.Component = (*Provider)(nil)

// NewProvider prepares the node's instruments. When enabled they come from
// the global meter, which forwards to the exporting provider once Start
// installs it, so components may take them before Start.
func NewProvider(cfg Config) *Provider {
	cfg.ApplyDefaults()
	p := &Provider{cfg: cfg, metrics: NopMetrics()}
	if cfg.Enabled {
		if m, err := NewMetrics(otel.Meter(MeterName)); err == nil {
			p.metrics = m
		}
	}
	return p
}

// Metrics returns the node's instruments.
func (p *Provider) Metrics() *Metrics { return p.metrics }

func (p *Provider) Name() string { return "observability" }

func (p *Provider) Start(ctx context.Context) error {
	if !p.cfg.Enabled {
		return nil
	}
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	mp, err := InitMeter(ctx, p.cfg)
	if err != nil {
		return err
	}
	tp, err := InitTracer(ctx, p.cfg)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return err
	}
	p.mp, p.tp = mp, tp
	return nil
}

// Stop flushes and shuts down both providers.
func (p *Provider) Stop(ctx context.Context) error {
	var errs []error
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
		p.mp = nil
	}
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
		p.tp = nil
	}
	return errors.Join(errs...)
}

func (p *Provider) Health(context.Context) component.Health {
	if p.cfg.Enabled && p.mp == nil {
		return component.Health{Name: p.Name(), Status: component.StatusDegraded, Message: "exporter not running"}
	}
	return component.Health{Name: p.Name(), Status: component.StatusHealthy}
}
