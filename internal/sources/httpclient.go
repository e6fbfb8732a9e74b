package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

// httpUserAgent identifies the crawler to upstream catalogs.
const httpUserAgent = "atheneum-ingest/1.0 (+https://github.com/atheneum-app/atheneum)"

// HTTPClient is the shared JSON fetch helper used by adapters. It applies a
// client-side rate limit and retries transient failures (network errors,
// 429, 5xx) with backoff. Non-retryable HTTP errors surface immediately.
type HTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a client limited to requestsPerSecond against one
// upstream host.
func NewHTTPClient(requestsPerSecond float64) *HTTPClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &HTTPClient{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// GetJSON fetches url and decodes the response body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	return retry.Do(
		func() error {
			return c.getOnce(ctx, url, out)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func (c *HTTPClient) getOnce(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	req.Header.Set("User-Agent", httpUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err // network errors are retryable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	default:
		io.Copy(io.Discard, resp.Body)
		return retry.Unrecoverable(fmt.Errorf("upstream returned %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
