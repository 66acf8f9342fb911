package pipeline

import (
	"context"
	"encoding/json"
)

// priorityChain applies the configured inter-call spacing policy before
// delegating. It does not interpret errors.
type priorityChain struct {
	next   Chain
	policy PriorityBackoff
}

// WithPriority wraps next with per-method priority throttling.
func WithPriority(next Chain, policy PriorityBackoff) Chain {
	return &priorityChain{next: next, policy: policy}
}

func (c *priorityChain) Call(ctx context.Context, inv *Invocation) (json.RawMessage, error) {
	if c.policy != nil {
		if err := c.policy.Wait(ctx, inv.Method); err != nil {
			return nil, err
		}
	}
	return c.next.Call(ctx, inv)
}
