package membership

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/kbukum/infermesh/component"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/peer"
	"github.com/kbukum/infermesh/resilience"
)

// SeedSource yields the addresses a node announces itself to on startup,
// in the order they should be tried.
type SeedSource interface {
	Seeds(ctx context.Context) ([]peer.Address, error)
}

// StaticSeeds is a fixed seed list, usually from PEER_NODES.
type StaticSeeds []peer.Address

func (s StaticSeeds) Seeds(context.Context) ([]peer.Address, error) {
	out := make([]peer.Address, 0, len(s))
	for _, a := range s {
		if a != "" {
			out = append(out, a)
		}
	}
	return out, nil
}

// ConsulConfig configures Consul-backed seeds.
type ConsulConfig struct {
	Addr       string `mapstructure:"addr"`
	Scheme     string `mapstructure:"scheme"`
	Token      string `mapstructure:"token"`
	Datacenter string `mapstructure:"datacenter"`
	Service    string `mapstructure:"service"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *ConsulConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:8500"
	}
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.Service == "" {
		c.Service = "infermesh"
	}
}

// Validate checks the configuration.
func (c *ConsulConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("consul address is required")
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return fmt.Errorf("consul scheme must be 'http' or 'https', got '%s'", c.Scheme)
	}
	return nil
}

// ConsulSeeds reads seeds from the passing instances of a Consul service
// and can register the local node as one of them.
type ConsulSeeds struct {
	client  *api.Client
	service string
	log     *logger.Logger
}

var _ SeedSource = (*ConsulSeeds)(nil)

func NewConsulSeeds(cfg ConsulConfig, log *logger.Logger) (*ConsulSeeds, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Addr
	apiCfg.Scheme = cfg.Scheme
	apiCfg.Token = cfg.Token
	if cfg.Datacenter != "" {
		apiCfg.Datacenter = cfg.Datacenter
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &ConsulSeeds{client: client, service: cfg.Service, log: log.WithComponent("consul")}, nil
}

// Seeds returns passing instances as host:port. The service address is
// preferred over the node address.
func (c *ConsulSeeds) Seeds(ctx context.Context) ([]peer.Address, error) {
	opts := (&api.QueryOptions{}).WithContext(ctx)
	entries, _, err := c.client.Health().Service(c.service, "", true, opts)
	if err != nil {
		return nil, fmt.Errorf("consul seeds %q: %w", c.service, err)
	}
	out := make([]peer.Address, 0, len(entries))
	for _, e := range entries {
		if a := entryAddress(e); a != "" {
			out = append(out, a)
		}
	}
	return out, nil
}

func entryAddress(e *api.ServiceEntry) peer.Address {
	if e == nil || e.Service == nil || e.Service.Port == 0 {
		return ""
	}
	host := e.Service.Address
	if host == "" && e.Node != nil {
		host = e.Node.Address
	}
	if host == "" {
		return ""
	}
	return peer.Address(net.JoinHostPort(host, strconv.Itoa(e.Service.Port)))
}

// Registration returns a component that registers self with a gRPC health
// check on Start and deregisters it on Stop.
func (c *ConsulSeeds) Registration(self peer.Address) (*ConsulRegistration, error) {
	host, portStr, err := net.SplitHostPort(self.String())
	if err != nil {
		return nil, fmt.Errorf("consul registration: self address %q: %w", self, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("consul registration: port %q: %w", portStr, err)
	}
	return &ConsulRegistration{
		seeds: c,
		reg: &api.AgentServiceRegistration{
			ID:      c.service + "-" + self.String(),
			Name:    c.service,
			Address: host,
			Port:    port,
			Check: &api.AgentServiceCheck{
				GRPC:                           self.String(),
				Interval:                       "15s",
				Timeout:                        "2s",
				DeregisterCriticalServiceAfter: "1m",
			},
		},
		retry: resilience.RetryConfig{
			MaxAttempts: 5,
			Backoff:     resilience.BackoffConfig{Initial: 500 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: 0.1},
		},
	}, nil
}

// ConsulRegistration advertises the node in Consul while it runs.
type ConsulRegistration struct {
	seeds *ConsulSeeds
	reg   *api.AgentServiceRegistration
	// retry covers a local agent that is still starting.
	retry resilience.RetryConfig

	registered bool
}

var _ component.Component = (*ConsulRegistration)(nil)

func (r *ConsulRegistration) Name() string { return "consul-registration" }

func (r *ConsulRegistration) Start(ctx context.Context) error {
	cfg := r.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		r.seeds.log.Warn("consul register failed", logger.Fields(
			logger.FieldAttempt, attempt,
			logger.FieldError, err.Error(),
			"retry_in", delay.String(),
		))
	}
	err := resilience.RetryFunc(ctx, cfg, func(context.Context) error {
		return r.seeds.client.Agent().ServiceRegister(r.reg)
	})
	if err != nil {
		return fmt.Errorf("consul register %q: %w", r.reg.ID, err)
	}
	r.registered = true
	r.seeds.log.Info("service registered", logger.Fields(
		"service_id", r.reg.ID, "address", r.reg.Address, "port", r.reg.Port,
	))
	return nil
}

func (r *ConsulRegistration) Stop(context.Context) error {
	if !r.registered {
		return nil
	}
	r.registered = false
	if err := r.seeds.client.Agent().ServiceDeregister(r.reg.ID); err != nil {
		return fmt.Errorf("consul deregister %q: %w", r.reg.ID, err)
	}
	r.seeds.log.Info("service deregistered", logger.Fields("service_id", r.reg.ID))
	return nil
}

func (r *ConsulRegistration) Health(context.Context) component.Health {
	if !r.registered {
		return component.Health{Name: r.Name(), Status: component.StatusDegraded, Message: "not registered"}
	}
	return component.Health{Name: r.Name(), Status: component.StatusHealthy}
}
