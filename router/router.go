// Package router forwards inference requests to a randomly chosen peer.
//
// Routing is single-attempt: a failed forward is reported to the caller,
// not retried on another peer.
package router

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/kbukum/infermesh/errors"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/observability"
	"github.com/kbukum/infermesh/peer"
)

// DefaultTimeout bounds one forwarded request.
const DefaultTimeout = 300 * time.Second

// Response is a peer's answer to a forwarded request.
type Response struct {
	Target      peer.Address
	StatusCode  int
	ContentType string
	Body        []byte
}

// Forwarder delivers a request body to target. For a non-2xx answer it
// returns the peer's response together with a ForwardingError.
type Forwarder interface {
	Forward(ctx context.Context, target peer.Address, body []byte) (*Response, error)
}

// Router picks a peer uniformly at random and forwards to it.
type Router struct {
	registry  peer.Registry
	forwarder Forwarder
	timeout   time.Duration
	log       *logger.Logger
	metrics   *observability.Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Router.
type Option func(*Router)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRand sets the source of peer choices.
func WithRand(rng *rand.Rand) Option {
	return func(r *Router) { r.rng = rng }
}

// WithMetrics records every routed request.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

func New(registry peer.Registry, forwarder Forwarder, log *logger.Logger, opts ...Option) *Router {
	if log == nil {
		log = logger.Nop()
	}
	r := &Router{
		registry:  registry,
		forwarder: forwarder,
		timeout:   DefaultTimeout,
		log:       log.WithComponent("router"),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route forwards body to one random peer. With no peers it returns
// RoutingUnavailable without contacting anyone.
func (r *Router) Route(ctx context.Context, body []byte) (*Response, error) {
	peers, err := r.registry.Snapshot(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if len(peers) == 0 {
		r.metrics.RecordProxy(ctx, 503, 0)
		return nil, apperrors.RoutingUnavailable()
	}
	target := r.pick(peers)

	ctx, span := observability.StartSpan(ctx, observability.SpanProxy, attribute.String(observability.AttrTarget, target.String()))
	fctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.forwarder.Forward(fctx, target, body)
	elapsed := time.Since(start)
	observability.EndSpan(span, err)

	status := 200
	switch {
	case resp != nil:
		status = resp.StatusCode
	case err != nil:
		status = 502
		if appErr, ok := apperrors.AsAppError(err); ok {
			status = appErr.HTTPStatus
		}
	}
	r.metrics.RecordProxy(ctx, status, elapsed)

	fields := logger.DurationFields(elapsed, logger.FieldTarget, target.String(), logger.FieldStatus, status)
	if err != nil {
		fields[logger.FieldError] = err.Error()
		r.log.WithContext(ctx).Warn("forward failed", fields)
		return resp, err
	}
	r.log.WithContext(ctx).Debug("forwarded", fields)
	return resp, nil
}

func (r *Router) pick(peers []peer.Address) peer.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return peers[r.rng.IntN(len(peers))]
}
