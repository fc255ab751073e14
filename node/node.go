package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/kbukum/infermesh/component"
	"github.com/kbukum/infermesh/config"
	"github.com/kbukum/infermesh/events"
	"github.com/kbukum/infermesh/generator"
	grpcx "github.com/kbukum/infermesh/grpc"
	grpcserver "github.com/kbukum/infermesh/grpc/server"
	"github.com/kbukum/infermesh/httpclient"
	"github.com/kbukum/infermesh/kafka"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/membership"
	"github.com/kbukum/infermesh/observability"
	"github.com/kbukum/infermesh/peer"
	"github.com/kbukum/infermesh/prober"
	"github.com/kbukum/infermesh/redis"
	"github.com/kbukum/infermesh/resilience"
	"github.com/kbukum/infermesh/router"
	"github.com/kbukum/infermesh/server"
	"github.com/kbukum/infermesh/server/endpoint"
	"github.com/kbukum/infermesh/version"
)

// Node is one member of the mesh.
type Node struct {
	cfg  config.MeshConfig
	log  *logger.Logger
	self peer.Address

	registry     peer.Registry
	components   *component.Registry
	grpc         *grpcserver.Server
	http         *server.Server
	checker      *prober.GRPCChecker
	prober       *prober.Prober
	bootstrapper *membership.Bootstrapper
	router       *router.Router
}

type options struct {
	generator    generator.Generator
	registry     peer.Registry
	seeds        membership.SeedSource
	grpcListener net.Listener
	httpListener net.Listener
	dialOpts     []grpc.DialOption
	sink         events.Sink
}

// Option customizes a Node.
type Option func(*options)

// WithGenerator replaces the Ollama generator built from configuration.
func WithGenerator(g generator.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithRegistry replaces the registry backend chosen by configuration.
func WithRegistry(r peer.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithSeedSource replaces the seed source chosen by configuration.
func WithSeedSource(s membership.SeedSource) Option {
	return func(o *options) { o.seeds = s }
}

// WithListeners serves gRPC and HTTP on the given listeners. Either may be nil.
func WithListeners(grpcLis, httpLis net.Listener) Option {
	return func(o *options) {
		o.grpcListener = grpcLis
		o.httpListener = httpLis
	}
}

// WithDialOptions adds options to every outbound gRPC dial.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

// WithEventSink publishes membership events to sink in addition to the log.
func WithEventSink(sink events.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// New builds a node from cfg. Nothing is started and no connection is made.
func New(cfg config.MeshConfig, log *logger.Logger, opts ...Option) (*Node, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("node config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	n := &Node{
		cfg:        cfg,
		log:        log.WithComponent("node"),
		self:       peer.Address(cfg.SelfAddress),
		components: component.NewRegistry(log),
	}

	obs := observability.NewProvider(observability.Config{
		Enabled:        cfg.OtelEnabled,
		ServiceName:    cfg.Name,
		ServiceVersion: version.Get().Version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.OtelEndpoint,
		Insecure:       true,
	})
	metrics := obs.Metrics()
	n.register(obs)

	if err := n.buildRegistry(o); err != nil {
		return nil, err
	}
	sink, err := n.buildSink(o)
	if err != nil {
		return nil, err
	}

	// gRPC: membership service and health.
	n.grpc = grpcserver.New(grpcx.ServerConfig{Host: cfg.GRPCHost, Port: cfg.GRPCPort}, log, grpcListener(o)...)
	membership.Register(n.grpc.Registrar(), membership.NewService(n.registry, log,
		membership.WithEvents(sink, n.self),
		membership.WithMetrics(metrics),
	))
	n.register(n.grpc)

	// HTTP: client-facing API.
	gen, err := n.buildGenerator(o)
	if err != nil {
		return nil, err
	}
	if c, ok := gen.(component.Component); ok {
		n.register(c)
	}
	fwdClient, err := httpclient.New(httpclient.Config{Timeout: cfg.ProxyTimeout})
	if err != nil {
		return nil, err
	}
	n.router = router.New(n.registry, router.NewHTTPForwarder(fwdClient, cfg.HTTPPort), log,
		router.WithTimeout(cfg.ProxyTimeout),
		router.WithMetrics(metrics),
	)
	httpCfg := server.Config{Host: cfg.HTTPHost, Port: cfg.HTTPPort}
	httpCfg.ApplyDefaults()
	var httpOpts []server.Option
	if o.httpListener != nil {
		httpOpts = append(httpOpts, server.WithListener(o.httpListener))
	}
	n.http = server.New(httpCfg, log, httpOpts...)
	n.http.ApplyMiddleware(metrics)
	n.routes(gen)
	n.register(n.http)

	// Membership: seeds, bootstrap, prober, rejoin.
	seeds, err := n.buildSeeds(o)
	if err != nil {
		return nil, err
	}
	n.bootstrapper = membership.NewBootstrapper(n.self, seeds,
		membership.NewClient(grpcx.Config{
			MethodTimeouts: map[string]time.Duration{membership.AnnounceMethod: cfg.AnnounceTimeout},
		}, log, o.dialOpts...), n.registry, log,
		membership.WithAnnounceTimeout(cfg.AnnounceTimeout),
		membership.WithJoinEvents(sink),
	)

	n.checker = prober.NewGRPCChecker(grpcx.Config{
		MethodTimeouts: map[string]time.Duration{healthpb.Health_Check_FullMethodName: cfg.ProbeTimeout},
	}, log, o.dialOpts...)
	n.prober = prober.New(n.registry, n.checker, n.self,
		prober.Config{Interval: cfg.ProbeInterval, Timeout: cfg.ProbeTimeout}, log,
		prober.WithEvents(sink),
		prober.WithMetrics(metrics),
	)
	n.register(component.NewBackground("prober", n.prober.Run))

	if s, ok := seeds.(membership.StaticSeeds); ok && len(s) == 0 {
		return n, nil
	}
	rejoiner := membership.NewRejoiner(n.bootstrapper, n.registry, membership.RejoinConfig{
		Backoff:       resilience.BackoffConfig{Initial: time.Second, Max: cfg.RejoinMaxDelay, Factor: 2, Jitter: 0.1},
		CheckInterval: cfg.ProbeInterval,
	}, log)
	n.register(component.NewBackground("rejoiner", rejoiner.Run))

	return n, nil
}

// register collects components in start order. Names are unique by
// construction, so a failure here is a programming error.
func (n *Node) register(c component.Component) {
	if err := n.components.Register(c); err != nil {
		panic(err)
	}
}

func grpcListener(o options) []grpcserver.Option {
	if o.grpcListener == nil {
		return nil
	}
	return []grpcserver.Option{grpcserver.WithListener(o.grpcListener)}
}

func (n *Node) routes(gen generator.Generator) {
	e := n.http.GinEngine()
	e.GET("/health", endpoint.Health(n.components.HealthAll))
	e.GET("/version", endpoint.Version())
	e.GET("/nodes", endpoint.Nodes(n.registry, n.cfg.HTTPPort))
	e.POST("/proxy-inference", endpoint.ProxyInference(n.router))
	e.POST("/generate", endpoint.Generate(gen, n.cfg.Models()))
}

func (n *Node) buildRegistry(o options) error {
	if o.registry != nil {
		n.registry = o.registry
		return nil
	}
	if n.cfg.RegistryBackend != config.RegistryRedis {
		n.registry = peer.NewMemoryRegistry()
		return nil
	}
	client, err := redis.New(redis.Config{
		Addr:     n.cfg.RedisAddr,
		Password: n.cfg.RedisPassword,
		DB:       n.cfg.RedisDB,
	}, n.log)
	if err != nil {
		return err
	}
	n.registry = peer.NewRedisRegistry(client, n.cfg.RedisKey)
	n.register(redis.NewComponent(client))
	return nil
}

func (n *Node) buildSink(o options) (events.Sink, error) {
	sinks := events.Multi{events.NewLogSink(n.log)}
	if o.sink != nil {
		sinks = append(sinks, o.sink)
	}
	if n.cfg.EventsSink == config.SinkKafka {
		producer, err := kafka.NewProducer(kafka.Config{
			Brokers: n.cfg.Brokers(),
			Topic:   n.cfg.KafkaTopic,
		}, n.log)
		if err != nil {
			return nil, err
		}
		n.register(producer)
		sinks = append(sinks, events.NewKafkaSink(producer))
	}
	return sinks, nil
}

func (n *Node) buildSeeds(o options) (membership.SeedSource, error) {
	if o.seeds != nil {
		return o.seeds, nil
	}
	if n.cfg.SeedSource != config.SeedsConsul {
		return membership.StaticSeeds(peer.Addresses(n.cfg.Seeds())), nil
	}
	consul, err := membership.NewConsulSeeds(membership.ConsulConfig{
		Addr:    n.cfg.ConsulAddr,
		Service: n.cfg.ConsulService,
	}, n.log)
	if err != nil {
		return nil, err
	}
	reg, err := consul.Registration(n.self)
	if err != nil {
		return nil, err
	}
	n.register(reg)
	return consul, nil
}

func (n *Node) buildGenerator(o options) (generator.Generator, error) {
	if o.generator != nil {
		return o.generator, nil
	}
	return generator.NewOllama(generator.OllamaConfig{
		BaseURL: n.cfg.GeneratorURL,
		Timeout: n.cfg.ProxyTimeout,
	}, n.log)
}

// Self returns the node's advertised gRPC address.
func (n *Node) Self() peer.Address { return n.self }

// Registry returns the node's peer registry.
func (n *Node) Registry() peer.Registry { return n.registry }

// Prober returns the node's health prober.
func (n *Node) Prober() *prober.Prober { return n.prober }

// GRPCAddr returns the gRPC listen address.
func (n *Node) GRPCAddr() string { return n.grpc.Addr() }

// HTTPAddr returns the HTTP listen address.
func (n *Node) HTTPAddr() string { return n.http.Addr() }

// Health reports every component's health.
func (n *Node) Health(ctx context.Context) []component.Health {
	return n.components.HealthAll(ctx)
}

// Start starts every component and then joins the mesh. A node that reaches
// no seed still starts, standalone.
func (n *Node) Start(ctx context.Context) (membership.Result, error) {
	if err := n.components.StartAll(ctx); err != nil {
		return membership.Result{}, err
	}
	res, err := n.bootstrapper.Join(ctx)
	if err != nil {
		_ = n.Stop(context.WithoutCancel(ctx))
		return res, err
	}
	n.log.Info("node started", logger.Fields(
		logger.FieldSelf, n.self.String(),
		"grpc_addr", n.GRPCAddr(),
		"http_addr", n.HTTPAddr(),
		"standalone", res.Standalone,
		logger.FieldCount, len(res.Peers),
	))
	return res, nil
}

// Stop stops every component in reverse order and closes cached peer
// connections.
func (n *Node) Stop(ctx context.Context) error {
	n.grpc.Drain()
	err := n.components.StopAll(ctx)
	if cerr := n.checker.Close(); cerr != nil && err == nil {
		err = cerr
	}
	n.log.Info("node stopped", logger.Fields(logger.FieldSelf, n.self.String()))
	return err
}

// Run starts the node and blocks until ctx is done or SIGINT/SIGTERM
// arrives, then stops it.
func (n *Node) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := n.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	n.log.Info("shutting down", logger.Fields("cause", context.Cause(ctx).Error()))

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), component.DefaultStopTimeout)
	defer cancel()
	return n.Stop(stopCtx)
}
