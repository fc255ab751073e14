package membership

import (
	"context"
	"time"

	"github.com/kbukum/infermesh/events"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/peer"
)

// DefaultAnnounceTimeout bounds a single announce to a seed.
const DefaultAnnounceTimeout = 5 * time.Second

// Result describes the outcome of a Join.
type Result struct {
	// Seed is the seed that answered; empty when standalone.
	Seed peer.Address
	// Peers is the list the seed returned.
	Peers []peer.Address
	// Standalone is true when no seed answered.
	Standalone bool
	// Attempts counts the seeds that were contacted.
	Attempts int
}

// Bootstrapper joins the node to a mesh by announcing itself to seeds.
type Bootstrapper struct {
	self      peer.Address
	seeds     SeedSource
	announcer Announcer
	registry  peer.Registry
	timeout   time.Duration
	sink      events.Sink
	log       *logger.Logger
}

// BootstrapOption configures a Bootstrapper.
type BootstrapOption func(*Bootstrapper)

// WithAnnounceTimeout overrides DefaultAnnounceTimeout.
func WithAnnounceTimeout(d time.Duration) BootstrapOption {
	return func(b *Bootstrapper) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithJoinEvents publishes a mesh.joined event after a successful join.
func WithJoinEvents(sink events.Sink) BootstrapOption {
	return func(b *Bootstrapper) { b.sink = sink }
}

func NewBootstrapper(self peer.Address, seeds SeedSource, announcer Announcer, registry peer.Registry, log *logger.Logger, opts ...BootstrapOption) *Bootstrapper {
	if seeds == nil {
		seeds = StaticSeeds(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	b := &Bootstrapper{
		self:      self,
		seeds:     seeds,
		announcer: announcer,
		registry:  registry,
		timeout:   DefaultAnnounceTimeout,
		log:       log.WithComponent("bootstrap"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Self returns the address this node announces.
func (b *Bootstrapper) Self() peer.Address { return b.self }

// Join announces self to each seed in order until one answers, then adds
// that seed's peer list, self and the seed to the registry. Seeds equal to
// self are skipped. When no seed answers the node continues standalone with
// only itself registered; that is not an error. Only a registry failure or
// a cancelled ctx is returned as an error.
func (b *Bootstrapper) Join(ctx context.Context) (Result, error) {
	seeds, err := b.candidates(ctx)
	if err != nil {
		b.log.Warn("failed to load seeds", logger.Fields(logger.FieldError, err.Error()))
	}

	var res Result
	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempts++

		actx, cancel := context.WithTimeout(ctx, b.timeout)
		start := time.Now()
		peers, err := b.announcer.Announce(actx, seed, b.self)
		cancel()
		if err != nil {
			b.log.Warn("seed unreachable", logger.DurationFields(time.Since(start),
				logger.FieldSeed, seed.String(),
				logger.FieldAttempt, res.Attempts,
				logger.FieldError, err.Error(),
			))
			continue
		}

		merged := make([]peer.Address, 0, len(peers)+2)
		merged = append(merged, peers...)
		merged = append(merged, b.self, seed)
		if err := b.registry.Add(ctx, merged...); err != nil {
			return res, err
		}
		res.Seed = seed
		res.Peers = peers
		b.log.Info("joined mesh", logger.Fields(
			logger.FieldSeed, seed.String(),
			logger.FieldCount, len(peers),
		))
		events.Publish(ctx, b.sink, b.log, events.New(events.MeshJoined, b.self, seed))
		return res, nil
	}

	if err := b.registry.Add(ctx, b.self); err != nil {
		return res, err
	}
	res.Standalone = true
	if res.Attempts == 0 {
		b.log.Debug("no seeds configured, running standalone", logger.Fields(logger.FieldSelf, b.self.String()))
		return res, nil
	}
	b.log.Info("no seed reachable, running standalone", logger.Fields(
		logger.FieldSelf, b.self.String(),
		logger.FieldAttempt, res.Attempts,
	))
	return res, nil
}

// candidates returns the seeds worth announcing to: not empty, not self.
func (b *Bootstrapper) candidates(ctx context.Context) ([]peer.Address, error) {
	seeds, err := b.seeds.Seeds(ctx)
	if err != nil {
		return nil, err
	}
	out := seeds[:0:0]
	for _, s := range seeds {
		if s != "" && s != b.self {
			out = append(out, s)
		}
	}
	return out, nil
}
