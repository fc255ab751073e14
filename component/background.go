package component

import (
	"context"
	"fmt"
	"sync"
)

// Background runs fn in its own goroutine between Start and Stop.
// fn must return once its context is cancelled.
type Background struct {
	name string
	fn   func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBackground wraps fn as a named component.
func NewBackground(name string, fn func(ctx context.Context)) *Background {
	return &Background{name: name, fn: fn}
}

func (b *Background) Name() string { return b.name }

// Start launches fn. The loop's context is detached from ctx's deadline
// so a startup timeout does not end it; only Stop does.
func (b *Background) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return fmt.Errorf("%s already running", b.name)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		b.fn(runCtx)
	}(b.done)
	return nil
}

// Stop cancels the loop and waits for it to return or ctx to expire.
func (b *Background) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s did not stop: %w", b.name, ctx.Err())
	}
}

func (b *Background) Health(context.Context) Health {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done == nil {
		return Health{Name: b.name, Status: StatusUnhealthy, Message: "not running"}
	}
	select {
	case <-done:
		return Health{Name: b.name, Status: StatusUnhealthy, Message: "exited"}
	default:
		return Health{Name: b.name, Status: StatusHealthy}
	}
}
