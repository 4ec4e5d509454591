// Package llm provides a provider-agnostic model client with retry and
// JSON-repair support, plus the tier router that selects model
// configurations for review tasks.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// maxResponseSize limits the model response body to prevent memory
// exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// jsonDirective is appended to every GenerateJSON prompt.
const jsonDirective = "\n\nRespond with JSON only. Do not include any prose outside the JSON."

// Endpoint identifies where a request is sent.
type Endpoint struct {
	// Provider is the registered provider name (anthropic, openai, ollama).
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API base URL; empty uses the provider default.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the model identifier sent to the provider.
	Model string `json:"model" yaml:"model"`
}

// Request defines a model completion request.
type Request struct {
	Endpoint Endpoint

	// System is the optional system prompt.
	System string

	// Prompt is the user message.
	Prompt string

	// Opts carries sampling parameters.
	Opts GenOptions
}

// Client is a provider-agnostic model client with retry support.
type Client struct {
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a new model client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // Allow time for model responses
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Generate sends a completion request and returns the generated text,
// retrying per the configured policy.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if req.Endpoint.Provider == "" {
		return "", fmt.Errorf("endpoint provider is required")
	}
	if req.Prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	var lastErr error
	transportRetried := false

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, req)
		if err == nil {
			return resp.Content, nil
		}
		lastErr = err

		if IsFatal(err) {
			return "", err
		}

		var delay time.Duration
		switch {
		case IsRateLimit(err):
			delay = c.rateLimitBackoff(attempt)
		case IsTransport(err):
			if transportRetried {
				return "", err
			}
			transportRetried = true
			delay = c.retryConfig.BackoffBase
		default:
			// Server errors retry on a flat delay.
			delay = c.retryConfig.BackoffBase
		}

		if attempt == c.retryConfig.MaxAttempts {
			break
		}

		c.logger.Debug("Model request failed, retrying",
			"attempt", attempt,
			"max_attempts", c.retryConfig.MaxAttempts,
			"backoff", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	return "", fmt.Errorf("model request failed after %d attempts: %w",
		c.retryConfig.MaxAttempts, lastErr)
}

// GenerateJSON sends a completion request with an explicit JSON-only
// directive and decodes the response into target, repairing the usual
// model output artifacts. Returns ErrJSONParse when the response cannot
// be coerced into JSON.
func (c *Client) GenerateJSON(ctx context.Context, req Request, target any) error {
	req.Prompt += jsonDirective

	content, err := c.Generate(ctx, req)
	if err != nil {
		return err
	}

	if err := ParseLooseJSON(content, target); err != nil {
		c.logger.Debug("Model response failed JSON parse",
			"content_length", len(content))
		return fmt.Errorf("%w: %s", ErrJSONParse, truncate(content, 200))
	}
	return nil
}

// rateLimitBackoff computes exponential backoff with jitter. Jitter
// prevents thundering herd when multiple workers retry simultaneously.
func (c *Client) rateLimitBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// doRequest executes a single HTTP request to the model endpoint.
func (c *Client) doRequest(ctx context.Context, req Request) (*Response, error) {
	provider := GetProvider(req.Endpoint.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", req.Endpoint.Provider))
	}

	url := provider.BuildURL(req.Endpoint.URL)

	messages := make([]Message, 0, 2)
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, Message{Role: "user", Content: req.Prompt})

	body, err := provider.BuildRequestBody(req.Endpoint.Model, messages, req.Opts)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending model request",
		"provider", req.Endpoint.Provider,
		"model", req.Endpoint.Model,
		"url", url,
		"prompt_length", len(req.Prompt))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransportError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransportError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return provider.ParseResponse(respBody, req.Endpoint.Model)
}

// classifyHTTPError buckets an HTTP error status into the retry taxonomy.
func classifyHTTPError(statusCode int, body []byte) error {
	err := fmt.Errorf("model API error (status %d): %s", statusCode, truncate(string(body), 200))

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	default:
		// Remaining 4xx errors indicate a bad request or bad credentials.
		return NewFatalError(err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
