package server

import (
	"context"

	"github.com/kbukum/infermesh/component"
)

var _ component.Component = (*Server)(nil)

func (s *Server) Name() string { return "http-server" }

func (s *Server) Health(context.Context) component.Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: "not listening"}
	}
	return component.Health{Name: s.Name(), Status: component.StatusHealthy, Message: s.listener.Addr().String()}
}
