package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vietddude/vkclient/apierror"
	"github.com/vietddude/vkclient/internal/backoff"
	"github.com/vietddude/vkclient/metrics"
)

// rateLimitAttempts bounds how often this layer re-tries after waiting
// out the persisted token. It does not consume the generic retry budget.
const rateLimitAttempts = 3

// rateLimitChain handles the per-device rate limit. It waits out any
// backoff the persisted token carries (including one recorded by a
// previous process), and on a rate-limit rejection extends the token
// and retries once the window has passed.
type rateLimitChain struct {
	next   Chain
	token  *backoff.RateLimitToken
	window time.Duration
}

// WithRateLimit wraps next with persisted rate-limit handling.
func WithRateLimit(next Chain, token *backoff.RateLimitToken, window time.Duration) Chain {
	return &rateLimitChain{next: next, token: token, window: window}
}

func (c *rateLimitChain) Call(ctx context.Context, inv *Invocation) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= rateLimitAttempts; attempt++ {
		if err := c.waitToken(ctx); err != nil {
			return nil, err
		}

		result, err := c.next.Call(ctx, inv)
		if err == nil {
			return result, nil
		}
		lastErr = err

		apiErr := asAPIError(err)
		if apiErr == nil || apiErr.Code != apierror.CodeRateLimitReached {
			return nil, err
		}

		c.token.RecordLimited(ctx, c.window)
		slog.Warn("rate limit reached, backing off",
			"method", inv.Method, "window", c.window, "attempt", attempt)
	}
	return nil, lastErr
}

func (c *rateLimitChain) waitToken(ctx context.Context) error {
	allowedAt := c.token.AllowedAt(ctx)
	if time.Until(allowedAt) <= 0 {
		return nil
	}
	metrics.BackoffWaitsTotal.WithLabelValues("rate_limit").Inc()
	return backoff.SleepUntil(ctx, allowedAt)
}
