package generator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/infermesh/component"
	"github.com/kbukum/infermesh/httpclient"
	"github.com/kbukum/infermesh/logger"
)

const (
	defaultOllamaURL         = "http://localhost:11434"
	defaultOllamaTimeout     = 300 * time.Second
	defaultOllamaAttempts    = 3
	ollamaHealthCheckTimeout = 2 * time.Second
)

// OllamaConfig configures the Ollama adapter.
type OllamaConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// MaxAttempts bounds calls to the local engine, counting the first.
	// Only refused connections and 5xx answers are retried.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// Tags maps request model names to Ollama model tags, e.g.
	// gemma -> gemma:2b. Unmapped names are sent as is.
	Tags map[string]string `yaml:"tags" mapstructure:"tags"`
}

// ApplyDefaults fills unset fields.
func (c *OllamaConfig) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultOllamaURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = defaultOllamaTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultOllamaAttempts
	}
}

// Ollama implements Generator with Ollama's /api/generate endpoint. As a
// component its health follows the engine's reachability.
type Ollama struct {
	cfg    OllamaConfig
	client *httpclient.Client
	log    *logger.Logger
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// NewOllama creates an Ollama adapter.
func NewOllama(cfg OllamaConfig, log *logger.Logger, opts ...httpclient.Option) (*Ollama, error) {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("generator")

	retry := httpclient.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxAttempts
	retry.RetryIf = retryableEngineError
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("ollama call failed, retrying", logger.Fields(
			logger.FieldAttempt, attempt,
			logger.FieldError, err.Error(),
			"retry_in", delay.String(),
		))
	}
	client, err := httpclient.New(httpclient.Config{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Retry: retry}, opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	return &Ollama{cfg: cfg, client: client, log: log}, nil
}

var _ component.Component = (*Ollama)(nil)

// retryableEngineError is true for a refused connection or a 5xx answer.
// Timeouts are not retried: a slow generation would only run again.
func retryableEngineError(err error) bool {
	e, ok := httpclient.AsError(err)
	if !ok {
		return false
	}
	return e.Code == httpclient.ErrCodeConnection || (e.Code == httpclient.ErrCodeServer && e.Retryable)
}

// Generate runs a non-streaming completion.
func (o *Ollama) Generate(ctx context.Context, req Request) (*Result, error) {
	body := ollamaGenerateRequest{
		Model:  o.tag(req.Model),
		Prompt: req.Prompt,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxNewTokens,
		},
	}
	start := time.Now()
	resp, err := httpclient.PostJSON[ollamaGenerateResponse](ctx, o.client, "/api/generate", body)
	if err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}
	o.log.Debug("generation complete", logger.DurationFields(time.Since(start),
		"model", req.Model, "completion_tokens", resp.EvalCount))

	return &Result{
		Status:           StatusSuccess,
		Model:            req.Model,
		Output:           resp.Response,
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
	}, nil
}

// IsAvailable reports whether the Ollama server answers.
func (o *Ollama) IsAvailable(ctx context.Context) bool {
	resp, err := o.client.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: "/api/tags"})
	return err == nil && resp.StatusCode == http.StatusOK
}

func (o *Ollama) Name() string { return "generator" }

// Start logs a warning when the engine is down; the node still starts and
// reports itself degraded until it comes up.
func (o *Ollama) Start(ctx context.Context) error {
	if h := o.Health(ctx); h.Status != component.StatusHealthy {
		o.log.Warn("inference engine unreachable", logger.Fields(logger.FieldEndpoint, o.cfg.BaseURL))
	}
	return nil
}

func (o *Ollama) Stop(context.Context) error { return nil }

func (o *Ollama) Health(ctx context.Context) component.Health {
	ctx, cancel := context.WithTimeout(ctx, ollamaHealthCheckTimeout)
	defer cancel()
	if !o.IsAvailable(ctx) {
		return component.Health{Name: o.Name(), Status: component.StatusDegraded, Message: "ollama unreachable at " + o.cfg.BaseURL}
	}
	return component.Health{Name: o.Name(), Status: component.StatusHealthy}
}

func (o *Ollama) tag(model string) string {
	if t, ok := o.cfg.Tags[model]; ok {
		return t
	}
	return model
}
