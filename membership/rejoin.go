package membership

import (
	"context"
	"errors"
	"time"

	"github.com/tilinna/clock"

	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/peer"
	"github.com/kbukum/infermesh/resilience"
)

var errStillStandalone = errors.New("no seed reachable")

// RejoinConfig configures a Rejoiner.
type RejoinConfig struct {
	// Backoff paces join attempts while the node is isolated.
	Backoff resilience.BackoffConfig
	// CheckInterval is how often the registry is checked for isolation.
	CheckInterval time.Duration
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *RejoinConfig) ApplyDefaults() {
	if c.Backoff == (resilience.BackoffConfig{}) {
		c.Backoff = resilience.DefaultBackoff()
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 15 * time.Second
	}
}

// Rejoiner re-runs Join whenever the node has no peers besides itself,
// e.g. after starting before its seeds or after the prober evicted
// everyone. Run is meant to be owned by a component.Background.
type Rejoiner struct {
	b        *Bootstrapper
	registry peer.Registry
	cfg      RejoinConfig
	log      *logger.Logger
}

func NewRejoiner(b *Bootstrapper, registry peer.Registry, cfg RejoinConfig, log *logger.Logger) *Rejoiner {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Rejoiner{b: b, registry: registry, cfg: cfg, log: log.WithComponent("rejoin")}
}

// Run checks for isolation every CheckInterval and, when isolated, retries
// Join with backoff until a seed answers. It returns when ctx is cancelled.
func (r *Rejoiner) Run(ctx context.Context) {
	ticker := clock.FromContext(ctx).NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !r.isolated(ctx) || !r.hasSeeds(ctx) {
			continue
		}
		err := resilience.Supervise(ctx, r.cfg.Backoff, r.attempt, func(attempt int, err error, delay time.Duration) {
			r.log.Debug("rejoin failed", logger.Fields(
				logger.FieldAttempt, attempt,
				logger.FieldError, err.Error(),
				"retry_in", delay.String(),
			))
		})
		if err == nil && !r.isolated(ctx) {
			r.log.Info("rejoined mesh")
		}
	}
}

func (r *Rejoiner) attempt(ctx context.Context) error {
	res, err := r.b.Join(ctx)
	if err != nil {
		return err
	}
	// Zero attempts means the seeds vanished since the tick; wait for the next one.
	if res.Standalone && res.Attempts > 0 {
		return errStillStandalone
	}
	return nil
}

func (r *Rejoiner) hasSeeds(ctx context.Context) bool {
	seeds, err := r.b.candidates(ctx)
	if err != nil {
		r.log.Debug("seed lookup failed", logger.Fields(logger.FieldError, err.Error()))
		return false
	}
	return len(seeds) > 0
}

func (r *Rejoiner) isolated(ctx context.Context) bool {
	peers, err := r.registry.Snapshot(ctx)
	if err != nil {
		r.log.Warn("registry snapshot failed", logger.Fields(logger.FieldError, err.Error()))
		return false
	}
	for _, p := range peers {
		if p != r.b.Self() {
			return false
		}
	}
	return true
}
