package grpc

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// KeepaliveConfig holds keepalive settings for gRPC connections.
type KeepaliveConfig struct {
	Time                time.Duration `mapstructure:"time"`
	Timeout             time.Duration `mapstructure:"timeout"`
	PermitWithoutStream bool          `mapstructure:"permit_without_stream"`
}

// Config holds dial settings for outbound peer connections.
type Config struct {
	MaxRecvMsgSize int             `mapstructure:"max_recv_msg_size"`
	Keepalive      KeepaliveConfig `mapstructure:"keepalive"`
	// CallTimeout applies to unary calls made without a deadline.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// MethodTimeouts overrides CallTimeout per full method name.
	MethodTimeouts map[string]time.Duration `mapstructure:"method_timeouts"`
}

const (
	defaultPort             = 50051
	defaultMaxRecvMsgSize   = 4 * 1024 * 1024
	defaultKeepaliveTime    = 30 * time.Second
	defaultKeepaliveTimeout = 10 * time.Second
	defaultCallTimeout      = 30 * time.Second
)

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.MaxRecvMsgSize == 0 {
		c.MaxRecvMsgSize = defaultMaxRecvMsgSize
	}
	if c.Keepalive.Time == 0 {
		c.Keepalive.Time = defaultKeepaliveTime
	}
	if c.Keepalive.Timeout == 0 {
		c.Keepalive.Timeout = defaultKeepaliveTimeout
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = defaultCallTimeout
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxRecvMsgSize <= 0 {
		return fmt.Errorf("grpc: max_recv_msg_size must be positive, got %d", c.MaxRecvMsgSize)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("grpc: call_timeout must not be negative")
	}
	for method, d := range c.MethodTimeouts {
		if d < 0 {
			return fmt.Errorf("grpc: timeout for %s must not be negative", method)
		}
	}
	return nil
}

// ServerConfig holds settings for the node's gRPC listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// GracePeriod bounds GracefulStop before in-flight RPCs are cut.
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// ApplyDefaults fills in zero-value fields.
func (c *ServerConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 5 * time.Second
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("grpc: port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Address returns the host:port listen address.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
