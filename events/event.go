// Package events publishes membership changes: peers joining through
// announce or bootstrap, peers evicted by the prober, and the node itself
// joining a mesh.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/peer"
)

// Type identifies a membership change.
type Type string

const (
	PeerJoined  Type = "peer.joined"
	PeerEvicted Type = "peer.evicted"
	MeshJoined  Type = "mesh.joined"
)

// Event is one membership change observed by Node.
type Event struct {
	ID     string       `json:"id"`
	Type   Type         `json:"type"`
	Peer   peer.Address `json:"peer"`
	Node   peer.Address `json:"node"`
	Reason string       `json:"reason,omitempty"`
	Time   time.Time    `json:"time"`
}

// New stamps an event with a fresh ID and the current UTC time.
func New(t Type, node, p peer.Address) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: t,
		Peer: p,
		Node: node,
		Time: time.Now().UTC(),
	}
}

// WithReason returns a copy of e carrying reason.
func (e Event) WithReason(reason string) Event {
	e.Reason = reason
	return e
}

// Sink receives events. Publish must not block membership operations for
// long; callers treat errors as log-only.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// LogSink writes events to a logger at info level.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.Nop()
	}
	return &LogSink{log: log.WithComponent("events")}
}

func (s *LogSink) Publish(ctx context.Context, e Event) error {
	fields := logger.Fields(
		"event_id", e.ID,
		"event_type", string(e.Type),
		logger.FieldPeer, e.Peer.String(),
		logger.FieldSelf, e.Node.String(),
	)
	if e.Reason != "" {
		fields["reason"] = e.Reason
	}
	s.log.WithContext(ctx).Info("membership event", fields)
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish sends e to sink and logs any failure instead of returning it.
func Publish(ctx context.Context, sink Sink, log *logger.Logger, e Event) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, e); err != nil && log != nil {
		log.Warn("failed to publish membership event", logger.Fields(
			"event_type", string(e.Type),
			logger.FieldPeer, e.Peer.String(),
			logger.FieldError, err.Error(),
		))
	}
}
