package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// maxResponseSize caps any response body read into memory
const maxResponseSize = 64 << 20

// StatusError is a completed request that the server answered with a
// non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
}

// Client sends HTTP requests, retrying transport failures and responses the
// server marks as temporary (429 and 5xx).
type Client struct {
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *zap.Logger
}

// NewClient creates a new transport client
func NewClient(httpClient *http.Client, retryConfig RetryConfig, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if retryConfig.MaxAttempts < 1 {
		retryConfig.MaxAttempts = 1
	}
	return &Client{
		httpClient:  httpClient,
		retryConfig: retryConfig,
		logger:      logger,
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// do runs newRequest until it succeeds, fails permanently or runs out of
// attempts, and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, newRequest func() (*http.Request, error)) ([]byte, error) {
	var lastErr error
	backoff := c.retryConfig.InitialBackoff

	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiple)
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}

		req, err := newRequest()
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			c.logger.Sugar().Debugw("Request failed, retrying", "url", req.URL.String(), "attempt", attempt+1, "error", err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
		if !retryable(resp.StatusCode) {
			return nil, statusErr
		}
		lastErr = statusErr
		c.logger.Sugar().Debugw("Temporary server error, retrying", "url", req.URL.String(), "attempt", attempt+1, "status", resp.StatusCode)
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.retryConfig.MaxAttempts, lastErr)
}

// Get fetches url and returns the response body
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	})
}

// PostJSON sends in as JSON to url and decodes the response into out
func (c *Client) PostJSON(ctx context.Context, url string, in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
