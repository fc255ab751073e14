// Package discovery keeps a client pointed at a reachable mesh gateway.
//
// Failover starts from a list of candidate node URLs, picks the first one
// whose /health answers, learns more candidates from that node's /nodes,
// and on a failed request switches to another healthy node and retries
// exactly once.
package discovery

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "github.com/kbukum/infermesh/errors"
	"github.com/kbukum/infermesh/httpclient"
	"github.com/kbukum/infermesh/logger"
)

const (
	DefaultHealthTimeout  = 5 * time.Second
	DefaultRequestTimeout = 300 * time.Second
)

// Config configures a Failover.
type Config struct {
	// HealthTimeout bounds each /health and /nodes call.
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
	// RequestTimeout bounds each attempt of Request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = DefaultHealthTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// NodesResponse is the body of GET /nodes.
type NodesResponse struct {
	Nodes []string `json:"nodes"`
}

// Failover tracks candidate gateways and the one currently in use. The
// candidate list only grows; order is first-seen. Safe for concurrent use.
type Failover struct {
	control *httpclient.Client
	data    *httpclient.Client
	log     *logger.Logger

	mu         sync.Mutex
	candidates []string
	active     string
}

// New creates a Failover over candidates. opts apply to both underlying
// HTTP clients.
func New(candidates []string, cfg Config, log *logger.Logger, opts ...httpclient.Option) (*Failover, error) {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	control, err := httpclient.New(httpclient.Config{Timeout: cfg.HealthTimeout}, opts...)
	if err != nil {
		return nil, err
	}
	data, err := httpclient.New(httpclient.Config{Timeout: cfg.RequestTimeout}, opts...)
	if err != nil {
		return nil, err
	}
	f := &Failover{control: control, data: data, log: log.WithComponent("failover")}
	f.merge(candidates)
	return f, nil
}

// Active returns the endpoint in use, or "" before the first successful
// FindHealthyEndpoint.
func (f *Failover) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Candidates returns a copy of the candidate list.
func (f *Failover) Candidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.candidates)
}

// FindHealthyEndpoint checks candidates in order and makes the first one
// answering /health with 2xx active. It returns a ConnectivityError when
// none does.
func (f *Failover) FindHealthyEndpoint(ctx context.Context) (string, error) {
	candidates := f.Candidates()
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		_, err := f.control.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: c + "/health"})
		if err != nil {
			f.log.Debug("candidate unhealthy", logger.Fields(
				logger.FieldEndpoint, c,
				logger.FieldError, err.Error(),
			))
			continue
		}
		f.mu.Lock()
		f.active = c
		f.mu.Unlock()
		f.log.Info("using endpoint", logger.Fields(logger.FieldEndpoint, c))
		return c, nil
	}
	return "", apperrors.Connectivity(candidates)
}

// RefreshEndpoints adds the active node's /nodes list to the candidates.
// It does nothing before an endpoint is active and never removes entries.
func (f *Failover) RefreshEndpoints(ctx context.Context) error {
	active := f.Active()
	if active == "" {
		return nil
	}
	nodes, err := httpclient.GetJSON[NodesResponse](ctx, f.control, active+"/nodes")
	if err != nil {
		return err
	}
	added := f.merge(nodes.Nodes)
	if added > 0 {
		f.log.Debug("learned endpoints", logger.Fields(logger.FieldCount, added, logger.FieldEndpoint, active))
	}
	return nil
}

// Request sends req to the active endpoint, choosing one first if needed;
// req.Path is relative to the endpoint. On a transport error or non-2xx
// status it runs one failover cycle (FindHealthyEndpoint, then
// RefreshEndpoints) and retries once. The second failure is returned.
func (f *Failover) Request(ctx context.Context, req httpclient.Request) (*httpclient.Response, error) {
	active := f.Active()
	if active == "" {
		var err error
		if active, err = f.FindHealthyEndpoint(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := f.send(ctx, active, req)
	if err == nil {
		return resp, nil
	}
	f.log.Warn("request failed, failing over", logger.Fields(
		logger.FieldEndpoint, active,
		logger.FieldError, err.Error(),
	))

	active, ferr := f.FindHealthyEndpoint(ctx)
	if ferr != nil {
		return resp, ferr
	}
	if rerr := f.RefreshEndpoints(ctx); rerr != nil {
		f.log.Warn("refresh endpoints failed", logger.Fields(
			logger.FieldEndpoint, active,
			logger.FieldError, rerr.Error(),
		))
	}
	return f.send(ctx, active, req)
}

func (f *Failover) send(ctx context.Context, endpoint string, req httpclient.Request) (*httpclient.Response, error) {
	req.Path = strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(req.Path, "/")
	return f.data.Do(ctx, req)
}

// merge appends unseen, non-empty URLs and returns how many were added.
func (f *Failover) merge(urls []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	added := 0
	for _, u := range urls {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" || slices.Contains(f.candidates, u) {
			continue
		}
		f.candidates = append(f.candidates, u)
		added++
	}
	return added
}
