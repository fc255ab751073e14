package membership

import (
	"context"
	"slices"

	"github.com/kbukum/infermesh/events"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/observability"
	"github.com/kbukum/infermesh/peer"
)

// Admitter decides whether an announcing address may join. Returning an
// error (usually errors.AnnounceRejected) refuses it.
type Admitter func(ctx context.Context, addr peer.Address) error

// Service handles inbound announcements against the local registry.
type Service struct {
	registry peer.Registry
	log      *logger.Logger
	admit    Admitter
	sink     events.Sink
	self     peer.Address
	metrics  *observability.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithAdmitter installs an admission hook. Without one every address is
// accepted.
func WithAdmitter(a Admitter) Option {
	return func(s *Service) { s.admit = a }
}

// WithEvents publishes a peer.joined event for each newly seen address.
func WithEvents(sink events.Sink, self peer.Address) Option {
	return func(s *Service) {
		s.sink = sink
		s.self = self
	}
}

// WithMetrics counts announcements by outcome.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(registry peer.Registry, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{registry: registry, log: log.WithComponent("membership")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Announce records addr and returns every peer this node knows, addr
// included. Repeated announcements of the same address are harmless. The
// empty address adds nothing and yields the current view.
func (s *Service) Announce(ctx context.Context, addr peer.Address) ([]peer.Address, error) {
	if addr == "" {
		return s.registry.Snapshot(ctx)
	}
	if s.admit != nil {
		if err := s.admit(ctx, addr); err != nil {
			s.log.WithContext(ctx).Warn("announce rejected", logger.Fields(
				logger.FieldPeer, addr.String(),
				logger.FieldError, err.Error(),
			))
			s.metrics.RecordAnnounce(ctx, "rejected")
			return nil, err
		}
	}

	var known bool
	if s.sink != nil {
		before, err := s.registry.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		known = slices.Contains(before, addr)
	}

	if err := s.registry.Add(ctx, addr); err != nil {
		s.metrics.RecordAnnounce(ctx, "error")
		return nil, err
	}
	s.metrics.RecordAnnounce(ctx, "accepted")
	peers, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if s.sink != nil && !known {
		events.Publish(ctx, s.sink, s.log, events.New(events.PeerJoined, s.self, addr))
	}
	s.log.WithContext(ctx).Debug("peer announced", logger.Fields(
		logger.FieldPeer, addr.String(),
		logger.FieldCount, len(peers),
	))
	return peers, nil
}
