// Package prober evicts unresponsive peers from the registry.
//
// Every interval the prober checks each known peer concurrently, each check
// bounded by its own timeout. A peer that reports NOT_SERVING or UNKNOWN,
// errors, or does not answer in time is removed. The prober never adds
// peers and never probes the node itself.
package prober

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tilinna/clock"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/infermesh/events"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/observability"
	"github.com/kbukum/infermesh/peer"
)

// Status is a peer's reported serving status.
type Status int

const (
	StatusUnknown Status = iota
	StatusServing
	StatusNotServing
)

func (s Status) String() string {
	switch s {
	case StatusServing:
		return "SERVING"
	case StatusNotServing:
		return "NOT_SERVING"
	default:
		return "UNKNOWN"
	}
}

// Checker asks a peer for its serving status.
type Checker interface {
	Check(ctx context.Context, addr peer.Address) (Status, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, addr peer.Address) (Status, error)

func (f CheckerFunc) Check(ctx context.Context, addr peer.Address) (Status, error) {
	return f(ctx, addr)
}

// forgetter is implemented by checkers holding per-peer state.
type forgetter interface {
	Forget(addr peer.Address)
}

const (
	DefaultInterval = 15 * time.Second
	DefaultTimeout  = 2 * time.Second
)

// Config configures a Prober.
type Config struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Eviction reasons.
const (
	ReasonNotServing = "not_serving"
	ReasonUnknown    = "unknown"
	ReasonTimeout    = "timeout"
	ReasonError      = "error"
)

// Eviction records one removed peer.
type Eviction struct {
	Peer   peer.Address
	Reason string
}

// Result summarizes one cycle.
type Result struct {
	Checked int
	Evicted []Eviction
}

// Prober periodically health-checks registry peers.
type Prober struct {
	registry peer.Registry
	checker  Checker
	self     peer.Address
	cfg      Config
	log      *logger.Logger
	sink     events.Sink
	metrics  *observability.Metrics
}

// Option configures a Prober.
type Option func(*Prober)

// WithEvents publishes a peer.evicted event per eviction.
func WithEvents(sink events.Sink) Option {
	return func(p *Prober) { p.sink = sink }
}

// WithMetrics records probe results and evictions.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Prober) { p.metrics = m }
}

func New(registry peer.Registry, checker Checker, self peer.Address, cfg Config, log *logger.Logger, opts ...Option) *Prober {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	p := &Prober{
		registry: registry,
		checker:  checker,
		self:     self,
		cfg:      cfg,
		log:      log.WithComponent("prober"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs a cycle every interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := clock.FromContext(ctx).NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := p.Cycle(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("probe cycle failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}
}

// Cycle checks every peer once, concurrently, and evicts the failures. It
// returns when every check has finished or timed out. The only error is a
// failed registry snapshot.
func (p *Prober) Cycle(ctx context.Context) (Result, error) {
	peers, err := p.registry.Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}

	var (
		mu  sync.Mutex
		res Result
		g   errgroup.Group
	)
	for _, addr := range peers {
		if addr == p.self {
			continue
		}
		res.Checked++
		g.Go(func() error {
			reason, evict := p.probe(ctx, addr)
			if !evict || ctx.Err() != nil {
				return nil
			}
			p.evict(ctx, addr, reason)
			mu.Lock()
			res.Evicted = append(res.Evicted, Eviction{Peer: addr, Reason: reason})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(res.Evicted, func(a, b Eviction) int {
		switch {
		case a.Peer < b.Peer:
			return -1
		case a.Peer > b.Peer:
			return 1
		}
		return 0
	})
	p.metrics.SetPeerCount(ctx, len(peers)-len(res.Evicted))
	return res, nil
}

type checkResult struct {
	status Status
	err    error
}

// probe runs one check. The timeout holds even if the checker ignores its
// context.
func (p *Prober) probe(ctx context.Context, addr peer.Address) (reason string, evict bool) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan checkResult, 1)
	go func() {
		st, err := p.checker.Check(cctx, addr)
		done <- checkResult{status: st, err: err}
	}()

	var r checkResult
	select {
	case r = <-done:
	case <-cctx.Done():
		r = checkResult{err: cctx.Err()}
	}
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		// Shutting down: the check was abandoned, not failed.
		return "", false
	}

	switch {
	case r.err != nil && cctx.Err() != nil:
		reason = ReasonTimeout
	case r.err != nil:
		reason = ReasonError
	case r.status == StatusServing:
		p.metrics.RecordProbe(ctx, "serving", elapsed)
		return "", false
	case r.status == StatusNotServing:
		reason = ReasonNotServing
	default:
		reason = ReasonUnknown
	}

	result := "not_serving"
	fields := logger.DurationFields(elapsed,
		logger.FieldPeer, addr.String(),
		logger.FieldStatus, r.status.String(),
		"reason", reason,
	)
	if r.err != nil {
		result = "error"
		fields[logger.FieldError] = r.err.Error()
	}
	p.metrics.RecordProbe(ctx, result, elapsed)
	p.log.Warn("peer failed health check", fields)
	return reason, true
}

func (p *Prober) evict(ctx context.Context, addr peer.Address, reason string) {
	if err := p.registry.Remove(ctx, addr); err != nil {
		p.log.Error("failed to evict peer", logger.Fields(
			logger.FieldPeer, addr.String(),
			logger.FieldError, err.Error(),
		))
		return
	}
	if f, ok := p.checker.(forgetter); ok {
		f.Forget(addr)
	}
	p.metrics.RecordEviction(ctx, reason)
	p.log.Info("peer evicted", logger.Fields(logger.FieldPeer, addr.String(), "reason", reason))
	events.Publish(ctx, p.sink, p.log, events.New(events.PeerEvicted, p.self, addr).WithReason(reason))
}
