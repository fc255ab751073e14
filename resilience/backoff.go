package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/tilinna/clock"
)

// BackoffConfig describes exponential backoff with jitter.
type BackoffConfig struct {
	// Initial is the delay after the first failure.
	Initial time.Duration
	// Max caps every delay, jitter included.
	Max time.Duration
	// Factor multiplies the delay after each failure.
	Factor float64
	// Jitter spreads each delay by up to +/- this fraction (0.0 to 1.0).
	Jitter float64
}

// DefaultBackoff returns 1s doubling up to 30s with 10% jitter.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: 0.1}
}

func (c *BackoffConfig) applyDefaults() {
	if c.Initial <= 0 {
		c.Initial = 100 * time.Millisecond
	}
	if c.Max <= 0 {
		c.Max = 10 * time.Second
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.Factor < 1 {
		c.Factor = 2
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		c.Jitter = 0
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	c.applyDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(c.Initial) * math.Pow(c.Factor, float64(attempt-1))
	if c.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * c.Jitter
	}
	if d > float64(c.Max) || math.IsInf(d, 0) || math.IsNaN(d) {
		d = float64(c.Max)
	}
	if d <= 0 {
		d = float64(c.Initial)
	}
	return time.Duration(d)
}

// wait blocks for d on the context's clock. It returns ctx.Err() if the
// context ends first.
func wait(ctx context.Context, d time.Duration) error {
	timer := clock.FromContext(ctx).NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
