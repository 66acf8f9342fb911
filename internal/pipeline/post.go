package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vietddude/vkclient/api"
	"github.com/vietddude/vkclient/apierror"
	"github.com/vietddude/vkclient/metrics"
	"github.com/vietddude/vkclient/transport"
)

// postChain is the innermost link for uploads: multipart exchange plus
// classification. Uploads carry no injected identity; the upload URL
// already encodes everything the server needs.
type postChain struct {
	tp transport.Transport
}

// NewPostChain creates the transport+classify link for upload calls.
func NewPostChain(tp transport.Transport) Chain {
	return &postChain{tp: tp}
}

func (c *postChain) Call(ctx context.Context, inv *Invocation) (json.RawMessage, error) {
	call := inv.Post
	if len(inv.Extra) > 0 {
		// Re-sent challenge answers ride along as extra form fields.
		b := api.NewPost(call.URL()).Retries(call.Retries())
		for _, f := range call.Form() {
			b.Field(f.Key, f.Value)
		}
		for _, f := range inv.Extra {
			b.Field(f.Key, f.Value)
		}
		for _, f := range call.Files() {
			b.File(f.Field, f.FileName, f.Content)
		}
		call = b.Build()
	}

	metrics.CallsTotal.WithLabelValues("upload").Inc()
	start := time.Now()
	body, err := c.tp.Post(ctx, call)
	metrics.CallLatency.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if cerr := apierror.Classify(body, "", nil); cerr != nil {
		recordError("upload", cerr, "")
		return nil, cerr
	}

	return extractResponse(body), nil
}
