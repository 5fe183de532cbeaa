// Package llm implements the LLM-backed collaborators of the engine: the
// theme proposer, the boolean-query builder, and the mutation target
// resolver. All of them run on one Anthropic Messages API client; the
// deterministic core never imports this package directly, it consumes the
// interfaces defined here.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	maxRetries       = 3
)

// Client calls the Anthropic Messages API.
type Client struct {
	apiKey     string
	model      string
	maxTokens  int
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEndpoint overrides the API endpoint (used by tests).
func WithEndpoint(url string) ClientOption {
	return func(c *Client) { c.endpoint = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates an API client for the given model.
func NewClient(apiKey, model string, maxTokens int, logger *zap.Logger, opts ...ClientOption) *Client {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		endpoint:  defaultEndpoint,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one user prompt with an optional system prompt and returns
// the text of the first content block, retrying transient failures with
// exponential backoff.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying llm call",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff(attempt - 1)):
			}
		}
		text, err := c.complete(ctx, system, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("llm call failed after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm api status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("llm error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response from llm")
	}
	return apiResp.Content[0].Text, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// RetryableError indicates a transient API failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// backoff returns a duration for attempt n (0-indexed) with jitter.
func backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// stripCodeBlock unwraps a fenced code block if the whole response is one.
func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
