package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/zivalx/dAIgest/internal/ports"
)

// maxResponseSize limits the completion response body.
const maxResponseSize = 10 * 1024 * 1024

// RetryConfig bounds the retry loop for transient provider failures.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig returns sensible retry defaults for LLM requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// Client is the provider-agnostic summarizer. It selects a Provider by name
// at call time and retries transient failures with exponential backoff.
type Client struct {
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
	baseURLs   map[string]string
	maxTokens  int
}

var _ ports.Summarizer = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithBaseURL overrides the endpoint for one provider.
func WithBaseURL(provider, baseURL string) ClientOption {
	return func(c *Client) { c.baseURLs[provider] = baseURL }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) { c.maxTokens = n }
}

// NewClient builds a summarizer client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		retry:      DefaultRetryConfig(),
		logger:     slog.Default(),
		baseURLs:   map[string]string{},
		maxTokens:  2000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Summarize performs the single summarization call of a cycle. Token counts
// come from the provider's usage report; when absent they are estimated from
// word counts (roughly 0.75 words per token).
func (c *Client) Summarize(ctx context.Context, req ports.SummarizeRequest) (*ports.SummarizeResult, error) {
	provider := LookupProvider(req.Provider)
	if provider == nil {
		return nil, fmt.Errorf("unknown llm provider %q", req.Provider)
	}

	body, err := provider.BuildRequestBody(req.Model, req.Prompt, req.Text, c.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.Provider, err)
	}

	endpoint := provider.BuildURL(c.baseURLs[req.Provider])

	start := time.Now()
	completion, err := c.completeWithRetry(ctx, provider, endpoint, body)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	inputTokens := completion.Usage.InputTokens
	if inputTokens == 0 {
		inputTokens = estimateTokens(req.Text)
	}
	outputTokens := completion.Usage.OutputTokens
	if outputTokens == 0 {
		outputTokens = estimateTokens(completion.Text)
	}

	c.logger.Info("summary generated",
		"provider", req.Provider,
		"model", req.Model,
		"input_tokens", inputTokens,
		"output_tokens", outputTokens,
		"duration_ms", elapsed.Milliseconds())

	return &ports.SummarizeResult{
		Text:           completion.Text,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		GenerationTime: elapsed,
	}, nil
}

func (c *Client) completeWithRetry(ctx context.Context, provider Provider, endpoint string, body []byte) (*Completion, error) {
	backoff := c.retry.BackoffBase
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		completion, err := c.doRequest(ctx, provider, endpoint, body)
		if err == nil {
			return completion, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == attempts {
			break
		}

		// Full jitter keeps concurrent retries from synchronizing.
		delay := time.Duration(rand.Float64() * float64(backoff))
		c.logger.Warn("llm request failed, retrying",
			"provider", provider.Name(),
			"attempt", attempt,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * c.retry.BackoffMultiplier)
		if backoff > c.retry.MaxBackoff {
			backoff = c.retry.MaxBackoff
		}
	}

	return nil, fmt.Errorf("%s completion failed: %w", provider.Name(), lastErr)
}

func (c *Client) doRequest(ctx context.Context, provider Provider, endpoint string, body []byte) (*Completion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, NewTransientError(fmt.Errorf("%s returned %s: %s", provider.Name(), resp.Status, responseExcerpt(raw)))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("%s returned %s: %s", provider.Name(), resp.Status, responseExcerpt(raw))
	}

	return provider.ParseResponse(raw)
}

func responseExcerpt(raw []byte) string {
	excerpt := strings.TrimSpace(string(raw))
	if len(excerpt) > 256 {
		excerpt = excerpt[:256]
	}
	return excerpt
}

func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) / 0.75)
}
