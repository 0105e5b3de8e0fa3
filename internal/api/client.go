package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client interface for testability
type Client interface {
	FetchChain(ctx context.Context, ticker, date string, dest io.Writer) (int64, error)
}

type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, ratePerSec int, timeout, retryDelay time.Duration, retryCount int, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		retryCount: retryCount,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// FetchChain streams the end-of-day option chain for ticker on date into dest
// as JSON lines, one contract per line. Status failures are retried with
// exponential backoff; once the body starts streaming the call is not retried.
func (c *HTTPClient) FetchChain(ctx context.Context, ticker, date string, dest io.Writer) (int64, error) {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/chains/%s?date=%s", c.baseURL, url.PathEscape(ticker), url.QueryEscape(date))
	c.logger.Debug("requesting", zap.String("url", endpoint))

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.get(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			n, err := io.Copy(dest, resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return n, fmt.Errorf("streaming chain: %w", err)
			}
			return n, nil

		case resp.StatusCode == http.StatusNotFound:
			drain(resp)
			return 0, ErrNotFound

		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			drain(resp)
			return 0, ErrAuthFailed

		case resp.StatusCode == http.StatusTooManyRequests:
			drain(resp)
			lastErr = ErrRateLimited

		case resp.StatusCode >= 500:
			drain(resp)
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}
	}

	return 0, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *HTTPClient) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// Retryable reports whether err is worth retrying in a later run.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrAuthFailed)
}
