package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vietddude/vkclient/apierror"
	"github.com/vietddude/vkclient/internal/backoff"
)

// internalRetryChain re-invokes downstream on unknown/internal server
// errors, up to the invocation's retry budget. It is the cheapest
// layer: by default it retries immediately, with an optional fixed
// delay between attempts.
type internalRetryChain struct {
	next  Chain
	delay time.Duration
}

// WithInternalRetry wraps next with internal-error retry.
func WithInternalRetry(next Chain, delay time.Duration) Chain {
	return &internalRetryChain{next: next, delay: delay}
}

func (c *internalRetryChain) Call(ctx context.Context, inv *Invocation) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= inv.Retries; attempt++ {
		if attempt > 0 && c.delay > 0 {
			if err := backoff.SleepUntil(ctx, time.Now().Add(c.delay)); err != nil {
				return nil, err
			}
		}

		result, err := c.next.Call(ctx, inv)
		if err == nil {
			return result, nil
		}
		lastErr = err

		apiErr := asAPIError(err)
		if apiErr == nil || !isInternalError(apiErr.Code) {
			return nil, err
		}
		slog.Debug("internal server error, retrying",
			"method", inv.Method, "code", apiErr.Code, "attempt", attempt)
	}
	return nil, lastErr
}

func isInternalError(code int) bool {
	return code == apierror.CodeUnknownError || code == apierror.CodeInternalServerError
}
