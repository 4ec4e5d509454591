package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider is a minimal provider for exercising the client against
// httptest servers. BuildURL passes the base URL through unchanged.
type stubProvider struct{}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) BuildURL(baseURL string) string { return baseURL }

func (s *stubProvider) SetHeaders(_ *http.Request) {}

func (s *stubProvider) BuildRequestBody(model string, messages []Message, opts GenOptions) ([]byte, error) {
	return json.Marshal(map[string]any{
		"model":    model,
		"messages": messages,
	})
}

func (s *stubProvider) ParseResponse(body []byte, model string) (*Response, error) {
	var decoded struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, err
	}
	return &Response{Content: decoded.Content, Model: model}, nil
}

func init() {
	RegisterProvider(&stubProvider{})
}

func fastRetryClient() *Client {
	return NewClient(WithRetryConfig(RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Millisecond,
	}))
}

func stubRequest(url string) Request {
	return Request{
		Endpoint: Endpoint{Provider: "stub", URL: url, Model: "test-model"},
		Prompt:   "review this",
	}
}

func TestClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"content": "no issues found"}`))
	}))
	defer server.Close()

	content, err := fastRetryClient().Generate(context.Background(), stubRequest(server.URL))
	require.NoError(t, err)
	assert.Equal(t, "no issues found", content)
}

func TestClientGenerate_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"content": "ok"}`))
	}))
	defer server.Close()

	content, err := fastRetryClient().Generate(context.Background(), stubRequest(server.URL))
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
	assert.Equal(t, int64(3), calls.Load())
}

func TestClientGenerate_RetriesServerError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"content": "recovered"}`))
	}))
	defer server.Close()

	content, err := fastRetryClient().Generate(context.Background(), stubRequest(server.URL))
	require.NoError(t, err)
	assert.Equal(t, "recovered", content)
}

func TestClientGenerate_FatalNoRetry(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "bad key"}`))
	}))
	defer server.Close()

	_, err := fastRetryClient().Generate(context.Background(), stubRequest(server.URL))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int64(1), calls.Load(), "4xx must not be retried")
}

func TestClientGenerate_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := fastRetryClient().Generate(context.Background(), stubRequest(server.URL))
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int64(3), calls.Load())
}

func TestClientGenerate_TransportRetriedOnce(t *testing.T) {
	// Point at a server that is already closed to force a dial failure.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := fastRetryClient().Generate(context.Background(), stubRequest(url))
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestClientGenerate_UnknownProvider(t *testing.T) {
	req := Request{
		Endpoint: Endpoint{Provider: "nonexistent", Model: "m"},
		Prompt:   "hi",
	}
	_, err := fastRetryClient().Generate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestClientGenerateJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Model wraps its JSON in prose and a fence.
		w.Write([]byte(`{"content": "Here you go:\n` + "```json\\n" + `{\"valid\": true, \"reason\": \"checks out\"}` + "\\n```" + `"}`))
	}))
	defer server.Close()

	var result struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	err := fastRetryClient().GenerateJSON(context.Background(), stubRequest(server.URL), &result)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "checks out", result.Reason)
}

func TestClientGenerateJSON_AppendsDirective(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []Message `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) > 0 {
			gotPrompt = body.Messages[len(body.Messages)-1].Content
		}
		w.Write([]byte(`{"content": "{}"}`))
	}))
	defer server.Close()

	var target map[string]any
	err := fastRetryClient().GenerateJSON(context.Background(), stubRequest(server.URL), &target)
	require.NoError(t, err)
	assert.Contains(t, gotPrompt, "Respond with JSON only")
}

func TestClientGenerateJSON_Unparseable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": "I cannot produce structured output, sorry."}`))
	}))
	defer server.Close()

	var target map[string]any
	err := fastRetryClient().GenerateJSON(context.Background(), stubRequest(server.URL), &target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJSONParse)
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusTooManyRequests, IsRateLimit, "429 is rate limit"},
		{http.StatusInternalServerError, IsTransient, "500 is transient"},
		{http.StatusServiceUnavailable, IsTransient, "503 is transient"},
		{http.StatusBadRequest, IsFatal, "400 is fatal"},
		{http.StatusForbidden, IsFatal, "403 is fatal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyHTTPError(tt.status, []byte("boom"))
			assert.True(t, tt.check(err))
		})
	}
}

func TestRateLimitBackoffCapped(t *testing.T) {
	c := NewClient(WithRetryConfig(RetryConfig{
		MaxAttempts:       10,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}))

	// Attempt 10 would be 2s * 2^9 = 1024s uncapped; jitter is ±25%.
	got := c.rateLimitBackoff(10)
	assert.LessOrEqual(t, got, time.Duration(float64(30*time.Second)*1.25))
	assert.GreaterOrEqual(t, got, time.Duration(float64(30*time.Second)*0.75))
}
