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

// tooManyChain handles request-volume rejections through the shared
// in-memory gate: one overloaded endpoint throttles every caller going
// through the same gate. Retries consume the invocation's budget.
type tooManyChain struct {
	next   Chain
	gate   *backoff.Gate
	window time.Duration
}

// WithTooManyRetry wraps next with too-many-requests handling.
func WithTooManyRetry(next Chain, gate *backoff.Gate, window time.Duration) Chain {
	return &tooManyChain{next: next, gate: gate, window: window}
}

func (c *tooManyChain) Call(ctx context.Context, inv *Invocation) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= inv.Retries; attempt++ {
		if err := c.waitGate(ctx); err != nil {
			return nil, err
		}

		result, err := c.next.Call(ctx, inv)
		if err == nil {
			return result, nil
		}
		lastErr = err

		apiErr := asAPIError(err)
		if apiErr == nil || !isTooManyError(apiErr.Code) {
			return nil, err
		}

		c.gate.RecordLimited(c.window)
		slog.Debug("too many requests, backing off",
			"method", inv.Method, "code", apiErr.Code, "attempt", attempt)
	}
	return nil, lastErr
}

func (c *tooManyChain) waitGate(ctx context.Context) error {
	if time.Until(c.gate.AllowedAt()) <= 0 {
		return nil
	}
	metrics.BackoffWaitsTotal.WithLabelValues("too_many_requests").Inc()
	return c.gate.Wait(ctx)
}

func isTooManyError(code int) bool {
	return code == apierror.CodeTooManyRequestsPerSecond ||
		code == apierror.CodeTooManySimilarRequests
}
