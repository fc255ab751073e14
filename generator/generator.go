package generator

import (
	"context"
	"encoding/json"
	"strings"

	apperrors "github.com/kbukum/infermesh/errors"
	"github.com/kbukum/infermesh/validation"
)

// Request defaults.
const (
	DefaultModel        = "gemma"
	DefaultTemperature  = 0.7
	DefaultMaxNewTokens = 150
)

// Request is a text generation request.
type Request struct {
	Prompt       string  `json:"prompt" validate:"required"`
	Model        string  `json:"model" validate:"required"`
	Temperature  float64 `json:"temperature" validate:"gte=0,lte=2"`
	MaxNewTokens int     `json:"max_new_tokens" validate:"gt=0,lte=8192"`
}

// Result is the output of a generation.
type Result struct {
	Status           string `json:"status"`
	Model            string `json:"model"`
	Output           string `json:"output"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

// StatusSuccess is the Status of a completed Result.
const StatusSuccess = "SUCCESS"

// Generator produces text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, req Request) (*Result, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (*Result, error) { return f(ctx, req) }

// DefaultRequest returns a Request with every optional field defaulted.
func DefaultRequest() Request {
	return Request{
		Model:        DefaultModel,
		Temperature:  DefaultTemperature,
		MaxNewTokens: DefaultMaxNewTokens,
	}
}

// DecodeRequest parses a JSON body over the defaults. Fields absent from the
// body keep their default values.
func DecodeRequest(body []byte) (Request, error) {
	req := DefaultRequest()
	if err := json.Unmarshal(body, &req); err != nil {
		return req, apperrors.InvalidInput("", "malformed JSON body")
	}
	req.Model = strings.ToLower(strings.TrimSpace(req.Model))
	return req, nil
}

// Validate checks req's fields and that its model is one of models. An
// empty models list accepts any model.
func (r Request) Validate(models []string) error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	return validation.New().OneOf("model", r.Model, models).Validate()
}
