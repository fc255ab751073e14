package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Registry backends.
const (
	RegistryMemory = "memory"
	RegistryRedis  = "redis"
)

// Seed sources.
const (
	SeedsEnv    = "env"
	SeedsConsul = "consul"
)

// Event sinks.
const (
	SinkLog   = "log"
	SinkKafka = "kafka"
)

// MeshConfig is the configuration of a mesh node. Every field has a default,
// so an empty environment yields a standalone node.
type MeshConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	// PeerNodes is the comma-separated seed list used for bootstrapping.
	PeerNodes string `yaml:"peer_nodes" mapstructure:"peer_nodes"`
	// SelfAddress is this node's gRPC address as peers should dial it.
	SelfAddress string `yaml:"self_address" mapstructure:"self_address"`
	GRPCHost    string `yaml:"grpc_host" mapstructure:"grpc_host"`
	GRPCPort    int    `yaml:"grpc_port" mapstructure:"grpc_port"`
	HTTPHost    string `yaml:"http_host" mapstructure:"http_host"`
	HTTPPort    int    `yaml:"http_port" mapstructure:"http_port"`

	ProbeInterval   time.Duration `yaml:"probe_interval" mapstructure:"probe_interval"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	AnnounceTimeout time.Duration `yaml:"announce_timeout" mapstructure:"announce_timeout"`
	ProxyTimeout    time.Duration `yaml:"proxy_timeout" mapstructure:"proxy_timeout"`
	RejoinMaxDelay  time.Duration `yaml:"rejoin_max_delay" mapstructure:"rejoin_max_delay"`

	RegistryBackend string `yaml:"registry_backend" mapstructure:"registry_backend"`
	RedisAddr       string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword   string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB         int    `yaml:"redis_db" mapstructure:"redis_db"`
	RedisKey        string `yaml:"redis_key" mapstructure:"redis_key"`

	SeedSource    string `yaml:"seed_source" mapstructure:"seed_source"`
	ConsulAddr    string `yaml:"consul_addr" mapstructure:"consul_addr"`
	ConsulService string `yaml:"consul_service" mapstructure:"consul_service"`

	EventsSink   string `yaml:"events_sink" mapstructure:"events_sink"`
	KafkaBrokers string `yaml:"kafka_brokers" mapstructure:"kafka_brokers"`
	KafkaTopic   string `yaml:"kafka_topic" mapstructure:"kafka_topic"`

	GeneratorURL    string `yaml:"generator_url" mapstructure:"generator_url"`
	GeneratorModels string `yaml:"generator_models" mapstructure:"generator_models"`

	OtelEnabled  bool   `yaml:"otel_enabled" mapstructure:"otel_enabled"`
	OtelEndpoint string `yaml:"otel_endpoint" mapstructure:"otel_endpoint"`
}

// ApplyDefaults applies default values to every unset field.
func (c *MeshConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "meshnode"
	}
	c.ServiceConfig.ApplyDefaults()

	if c.GRPCHost == "" {
		c.GRPCHost = "0.0.0.0"
	}
	if c.GRPCPort == 0 {
		c.GRPCPort = 50051
	}
	if c.HTTPHost == "" {
		c.HTTPHost = "0.0.0.0"
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = 8000
	}
	if c.SelfAddress == "" {
		c.SelfAddress = net.JoinHostPort("localhost", strconv.Itoa(c.GRPCPort))
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = 15 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 2 * time.Second
	}
	if c.AnnounceTimeout == 0 {
		c.AnnounceTimeout = 5 * time.Second
	}
	if c.ProxyTimeout == 0 {
		c.ProxyTimeout = 300 * time.Second
	}
	if c.RejoinMaxDelay == 0 {
		c.RejoinMaxDelay = 30 * time.Second
	}
	if c.RegistryBackend == "" {
		c.RegistryBackend = RegistryMemory
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.RedisKey == "" {
		c.RedisKey = "infermesh:peers"
	}
	if c.SeedSource == "" {
		c.SeedSource = SeedsEnv
	}
	if c.ConsulAddr == "" {
		c.ConsulAddr = "localhost:8500"
	}
	if c.ConsulService == "" {
		c.ConsulService = "infermesh"
	}
	if c.EventsSink == "" {
		c.EventsSink = SinkLog
	}
	if c.KafkaBrokers == "" {
		c.KafkaBrokers = "localhost:9092"
	}
	if c.KafkaTopic == "" {
		c.KafkaTopic = "infermesh.membership"
	}
	if c.GeneratorURL == "" {
		c.GeneratorURL = "http://localhost:11434"
	}
	if c.GeneratorModels == "" {
		c.GeneratorModels = "gemma,mistral"
	}
	if c.OtelEndpoint == "" {
		c.OtelEndpoint = "localhost:4318"
	}
}

// Validate validates the mesh configuration.
func (c *MeshConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if c.GRPCPort <= 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("grpc_port must be between 1 and 65535 (got: %d)", c.GRPCPort)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535 (got: %d)", c.HTTPPort)
	}
	if c.GRPCPort == c.HTTPPort && c.GRPCHost == c.HTTPHost {
		return fmt.Errorf("grpc_port and http_port must differ (both %d)", c.GRPCPort)
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe_interval must be positive")
	}
	if c.ProbeTimeout <= 0 || c.ProbeTimeout >= c.ProbeInterval {
		return fmt.Errorf("probe_timeout must be positive and shorter than probe_interval (got: %s)", c.ProbeTimeout)
	}
	if c.AnnounceTimeout <= 0 || c.ProxyTimeout <= 0 {
		return fmt.Errorf("announce_timeout and proxy_timeout must be positive")
	}
	switch c.RegistryBackend {
	case RegistryMemory, RegistryRedis:
	default:
		return fmt.Errorf("registry_backend must be %q or %q (got: %s)", RegistryMemory, RegistryRedis, c.RegistryBackend)
	}
	switch c.SeedSource {
	case SeedsEnv, SeedsConsul:
	default:
		return fmt.Errorf("seed_source must be %q or %q (got: %s)", SeedsEnv, SeedsConsul, c.SeedSource)
	}
	switch c.EventsSink {
	case SinkLog, SinkKafka:
	default:
		return fmt.Errorf("events_sink must be %q or %q (got: %s)", SinkLog, SinkKafka, c.EventsSink)
	}
	return nil
}

// Seeds returns the configured seed addresses in order.
func (c *MeshConfig) Seeds() []string { return SplitList(c.PeerNodes) }

// Brokers returns the configured Kafka brokers.
func (c *MeshConfig) Brokers() []string { return SplitList(c.KafkaBrokers) }

// Models returns the models the local generator accepts.
func (c *MeshConfig) Models() []string { return SplitList(c.GeneratorModels) }

// GRPCListenAddress is the address the gRPC server binds.
func (c *MeshConfig) GRPCListenAddress() string {
	return net.JoinHostPort(c.GRPCHost, strconv.Itoa(c.GRPCPort))
}

// SplitList splits a comma-separated list, trimming blanks and dropping
// empty entries.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
