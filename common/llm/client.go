package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	defaultMaxTokens = 4096
	defaultTimeout   = 120 * time.Second
)

// Client sends prompts to a model backend and recovers text or JSON from the reply.
type Client interface {
	// Complete returns the model output. When req.ExpectJSON is set, Response.JSON
	// holds the extracted document or stays nil if nothing could be recovered.
	Complete(ctx context.Context, req Request) (*Response, error)
	// CompleteJSON is the strict variant of Complete: it fails with a *ParseError
	// when no JSON can be extracted from the output.
	CompleteJSON(ctx context.Context, req Request) (*Response, error)
	Model() string
}

type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	ExpectJSON  bool
	Timeout     time.Duration // zero = client default
	Temperature *float64      // nil = model default
}

type Response struct {
	Content          string
	Model            string
	JSON             json.RawMessage
	PromptTokens     int
	CompletionTokens int
}

// HasJSON reports whether a JSON document was recovered from the output.
func (r *Response) HasJSON() bool {
	return r != nil && len(r.JSON) > 0
}

// DecodeJSON unmarshals the recovered JSON into v.
func (r *Response) DecodeJSON(v any) error {
	if !r.HasJSON() {
		return ErrParse
	}
	if err := json.Unmarshal(r.JSON, v); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

// Provider performs a single, unretried call against a model backend.
type Provider interface {
	Generate(ctx context.Context, model string, req Request) (*Generation, error)
	Name() string
}

// Generation is the raw output of one provider call.
type Generation struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Config holds LLM client configuration.
type Config struct {
	Provider  string        // "anthropic" (default) or "openai"
	APIKey    string        // Required: API key for the provider
	BaseURL   string        // Optional: custom API endpoint (e.g. an OpenAI-compatible GLM gateway)
	Model     string        // Model name (e.g., "claude-sonnet-4-20250514")
	MaxTokens int           // Default max tokens when a request leaves it unset
	Timeout   time.Duration // Default per-call budget
}

type client struct {
	provider  Provider
	model     string
	maxTokens int
	timeout   time.Duration
	retry     RetryPolicy
}

// New creates a Client for the configured provider with the default retry policy.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderAnthropic
	}

	var p Provider
	switch provider {
	case ProviderAnthropic:
		p = newAnthropicProvider(cfg)
		if cfg.Model == "" {
			cfg.Model = "claude-sonnet-4-20250514"
		}
	case ProviderOpenAI:
		p = newOpenAIProvider(cfg)
		if cfg.Model == "" {
			cfg.Model = "gpt-4o-mini"
		}
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}

	return NewClient(p, cfg, DefaultRetryPolicy()), nil
}

// NewClient wraps an arbitrary Provider with timeout, retry and JSON extraction.
func NewClient(p Provider, cfg Config, retry RetryPolicy) Client {
	c := &client{
		provider:  p,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		retry:     retry,
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

func (c *client) Model() string {
	return c.model
}

func (c *client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.maxTokens
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	start := time.Now()
	var gen *Generation
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		gen, callErr = c.generate(ctx, req, timeout)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Content:          gen.Text,
		Model:            c.model,
		PromptTokens:     gen.PromptTokens,
		CompletionTokens: gen.CompletionTokens,
	}
	if req.ExpectJSON {
		if data, ok := ExtractJSON(gen.Text); ok {
			resp.JSON = data
		}
	}

	slog.InfoContext(ctx, "llm completion",
		"model", c.model,
		"content_length", len(resp.Content),
		"has_json", resp.HasJSON(),
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens)

	return resp, nil
}

func (c *client) CompleteJSON(ctx context.Context, req Request) (*Response, error) {
	req.ExpectJSON = true
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.HasJSON() {
		return nil, &ParseError{Model: c.model, ContentLength: len(resp.Content)}
	}
	return resp, nil
}

// generate runs one provider call under the per-call timeout and maps its
// failure onto the client's error taxonomy.
func (c *client) generate(ctx context.Context, req Request, timeout time.Duration) (*Generation, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gen, err := c.provider.Generate(callCtx, c.model, req)
	if err == nil {
		return gen, nil
	}

	// The caller's own cancellation is not a backend failure.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return nil, &TimeoutError{Model: c.model, After: timeout}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return nil, apiErr
	}
	return nil, newAPIError(c.provider.Name(), 0, err.Error(), err)
}

// Temp returns a pointer to t for Request.Temperature.
func Temp(t float64) *float64 {
	return &t
}
