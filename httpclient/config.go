package httpclient

import (
	"fmt"
	"time"

	"github.com/kbukum/infermesh/resilience"
)

const defaultTimeout = 30 * time.Second

// Config configures the HTTP client.
type Config struct {
	// BaseURL is prepended to request paths that are not absolute URLs.
	BaseURL string `mapstructure:"base_url"`

	// Timeout bounds each attempt. Defaults to 30s.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are sent with every request.
	Headers map[string]string `mapstructure:"headers"`

	// Retry retries failed attempts. Nil disables retry.
	Retry *resilience.RetryConfig `mapstructure:"-"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("httpclient: timeout must be positive")
	}
	return nil
}

// DefaultRetryConfig retries retryable errors up to three attempts.
func DefaultRetryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts: 3,
		Backoff:     resilience.BackoffConfig{Initial: 200 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: 0.1},
		RetryIf:     IsRetryable,
	}
}
