package pipeline

import (
	"context"
	"encoding/json"

	"github.com/vietddude/vkclient/apierror"
)

// credentialsChain observes authorization failures. It never retries
// and never suppresses: the listener is notified once per occurrence,
// synchronously, and the error continues outward unchanged.
type credentialsChain struct {
	next     Chain
	listener CredentialsListener
}

// WithCredentialsObserver wraps next with invalid-credentials
// observation.
func WithCredentialsObserver(next Chain, listener CredentialsListener) Chain {
	return &credentialsChain{next: next, listener: listener}
}

func (c *credentialsChain) Call(ctx context.Context, inv *Invocation) (json.RawMessage, error) {
	result, err := c.next.Call(ctx, inv)
	if err == nil {
		return result, nil
	}
	if apiErr := asAPIError(err); apiErr != nil && apiErr.Code == apierror.CodeAuthorizationFailed {
		if c.listener != nil {
			c.listener(apiErr)
		}
	}
	return nil, err
}
