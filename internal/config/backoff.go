package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// retryBaseDelay is the wait before the first retry inside DoWithBackoff.
var retryBaseDelay = BASE_BACKOFF

// DoWithBackoff sends req, retrying transport errors and 5xx responses with
// exponential backoff and jitter. maxRetries <= 0 retries until ctx is done.
// Any non-5xx response is returned as is; the caller checks the status.
func DoWithBackoff(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	delay := retryBaseDelay
	var lastErr error

	for attempt := 0; maxRetries <= 0 || attempt <= maxRetries; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
			// drain so the connection can be reused
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		default:
			return resp, nil
		}

		if maxRetries > 0 && attempt == maxRetries {
			break
		}

		timer := time.NewTimer(withJitter(delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("request to %s abandoned: %w", req.URL.Redacted(), ctx.Err())
		case <-timer.C:
		}
		delay = calculateNewBackoffDelay(delay)
	}

	return nil, fmt.Errorf("max retries exceeded for %s: %w", req.URL.Redacted(), lastErr)
}
