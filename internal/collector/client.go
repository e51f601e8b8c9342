package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	xhttp "ChainCast/pkg/http"
	applogger "ChainCast/pkg/logger"
)

var (
	// ErrRateLimited is returned when either the local sliding-window
	// limiter or the upstream (HTTP 429) refuses the call.
	ErrRateLimited = errors.New("collector: rate limited")
	// ErrUpstreamClient marks a non-retryable 4xx or malformed payload.
	ErrUpstreamClient = errors.New("collector: permanent upstream error")
)

const (
	maxRetries  = 3
	backoffBase = 1 * time.Second
	backoffCap  = 5 * time.Second
)

// restClient wraps pkg/http with the retry policy every source shares:
// up to 3 retries with exponential backoff for transient failures, immediate
// abort on 429 (rate limit) and on any other 4xx (permanent client error).
type restClient struct {
	client *xhttp.Client
	l      *applogger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func newRESTClient(timeout time.Duration, l *applogger.Logger) *restClient {
	return &restClient{
		client: xhttp.NewClient(xhttp.WithTimeout(timeout)),
		l:      l,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// getJSON fetches URL with query params into dest, retrying transient
// failures. Retries are strictly sequential.
func (c *restClient) getJSON(ctx context.Context, source, url string, query map[string][]string, dest interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffBase << (attempt - 1)
			if backoff > backoffCap {
				backoff = backoffCap
			}
			if err := c.sleep(ctx, backoff); err != nil {
				return err
			}
		}

		start := time.Now()
		err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         url,
			QueryParams: query,
		}, dest)
		if err == nil {
			return nil
		}
		lastErr = err

		var se *xhttp.StatusError
		if errors.As(err, &se) {
			if se.IsRateLimit() {
				// 429 aborts immediately, no retry
				return fmt.Errorf("%w: %s upstream 429", ErrRateLimited, source)
			}
			if se.IsClientError() {
				return fmt.Errorf("%w: %s status %d", ErrUpstreamClient, source, se.Code)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.l != nil {
			c.l.Warn("source fetch retry",
				applogger.String("source", source),
				applogger.Int("attempt", attempt+1),
				applogger.Duration("latency", time.Since(start)),
				applogger.Error(err))
		}
	}
	return fmt.Errorf("%s: retries exhausted: %w", source, lastErr)
}
