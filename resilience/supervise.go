package resilience

import (
	"context"
	"time"
)

// Supervise calls fn until it returns nil, waiting between failures
// according to cfg. There is no attempt limit; cancelling ctx is the
// stop signal, in which case ctx.Err() is returned. onFailure, when set,
// sees every failure and the delay that follows it.
func Supervise(ctx context.Context, cfg BackoffConfig, fn func(ctx context.Context) error, onFailure func(attempt int, err error, delay time.Duration)) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		delay := cfg.Delay(attempt)
		if onFailure != nil {
			onFailure(attempt, err, delay)
		}
		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
}
