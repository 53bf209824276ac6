package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 3
)

// Delivery headers. Receivers deduplicate retried events on the
// idempotency key, which is the decision's audit id.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderEvent          = "X-Stancewatch-Event"
	HeaderConfigHash     = "X-Stancewatch-Config-Hash"
)

// retryBackoff is the base delay between attempts; attempt n waits n times it.
var retryBackoff = time.Second

// Send posts an alert event to one webhook. Transport failures and 5xx
// responses are retried; a 4xx is final. Cancelling ctx abandons both the
// request in flight and any pending retry.
func Send(ctx context.Context, client *http.Client, cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*retryBackoff); err != nil {
				return fmt.Errorf("webhook abandoned after %d attempt(s): %w", attempt, err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "stancewatch-alert")
		req.Header.Set(HeaderEvent, event.Event)
		if event.AuditID != "" {
			req.Header.Set(HeaderIdempotencyKey, event.AuditID)
		}
		if event.ConfigHash != "" {
			req.Header.Set(HeaderConfigHash, event.ConfigHash)
		}
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("webhook abandoned after %d attempt(s): %w", attempt+1, ctx.Err())
			}
			lastErr = err
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
