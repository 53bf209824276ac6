package ratelimit

import (
	"context"
	"fmt"

	"github.com/ppiankov/stancewatch/internal/nonce"
)

// Reason is the failure reason of a rate-limited request.
const Reason = "rate_limited"

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Current  int64
	Limit    int
	Reason   string
}

// Check compares the current count against the limit.
func Check(count int64, limit Limit) CheckResult {
	if !limit.Enabled() {
		return CheckResult{Current: count}
	}
	if count > int64(limit.MaxRequests) {
		return CheckResult{
			Exceeded: true,
			Current:  count,
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
				count, limit.MaxRequests, limit.Window),
		}
	}
	return CheckResult{Current: count, Limit: limit.MaxRequests}
}

// Limiter counts requests per user in a nonce store.
type Limiter struct {
	store nonce.Store
	limit Limit
}

// New creates a limiter. A disabled limit never touches the store.
func New(store nonce.Store, limit Limit) *Limiter {
	return &Limiter{store: store, limit: limit}
}

// Allow records one request for userID and reports whether it exceeds the
// limit. The window starts at the user's first request. Store errors are
// returned so the caller can fail closed.
func (l *Limiter) Allow(ctx context.Context, userID string) (CheckResult, error) {
	if l == nil || !l.limit.Enabled() {
		return CheckResult{}, nil
	}
	count, err := l.store.Incr(ctx, key(userID), l.limit.Window)
	if err != nil {
		return CheckResult{}, fmt.Errorf("ratelimit: %w", err)
	}
	return Check(count, l.limit), nil
}

func key(userID string) string {
	if userID == "" {
		userID = "anonymous"
	}
	return "ratelimit:user:" + userID
}
