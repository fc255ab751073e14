package redis

import (
	"context"
	"fmt"

	"github.com/kbukum/infermesh/component"
)

// Component ties a Client to the node lifecycle.
type Component struct {
	client *Client
}

var _ component.Component = (*Component)(nil)

// NewComponent wraps client for registration.
func NewComponent(client *Client) *Component {
	return &Component{client: client}
}

func (c *Component) Name() string { return "redis" }

// Start verifies the server is reachable.
func (c *Component) Start(ctx context.Context) error {
	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("redis start: %w", err)
	}
	c.client.log.Info("redis connected", map[string]interface{}{"addr": c.client.Addr()})
	return nil
}

func (c *Component) Stop(_ context.Context) error {
	return c.client.Close()
}

func (c *Component) Health(ctx context.Context) component.Health {
	if err := c.client.Ping(ctx); err != nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: err.Error()}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}
