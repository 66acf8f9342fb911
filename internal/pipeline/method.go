package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/vietddude/vkclient/api"
	"github.com/vietddude/vkclient/apierror"
	"github.com/vietddude/vkclient/metrics"
	"github.com/vietddude/vkclient/transport"
)

// Identity holds the values the innermost link injects into every
// outgoing method call.
type Identity struct {
	Version          string
	AccessToken      string
	Lang             string
	DeviceID         string
	ExternalDeviceID string
}

// methodChain is the innermost link: it finalizes the parameter map,
// performs the network exchange and classifies the raw payload.
type methodChain struct {
	tp transport.Transport
	id Identity
}

// NewMethodChain creates the transport+classify link for method calls.
func NewMethodChain(tp transport.Transport, id Identity) Chain {
	return &methodChain{tp: tp, id: id}
}

func (c *methodChain) Call(ctx context.Context, inv *Invocation) (json.RawMessage, error) {
	call := inv.Call
	token := c.id.AccessToken
	if call.Anonymous() {
		token = ""
	}
	if token == "" && !call.Anonymous() && !call.AllowNoAuth() {
		return nil, fmt.Errorf("access token required for %s", call.Method())
	}

	params := c.finalParams(inv, token)

	metrics.CallsTotal.WithLabelValues(call.Method()).Inc()
	start := time.Now()
	body, err := c.tp.Call(ctx, transport.Request{Method: call.Method(), Params: params})
	metrics.CallLatency.WithLabelValues(call.Method()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if cerr := apierror.Classify(body, call.Method(), call.IgnoredExecuteErrors()); cerr != nil {
		recordError(call.Method(), cerr, token)
		return nil, cerr
	}

	return extractResponse(body), nil
}

// finalParams merges call parameters, per-attempt extras and the
// injected identity. Injection happens exactly once, here, right before
// the transport fires; caller-supplied keys win over injected ones.
func (c *methodChain) finalParams(inv *Invocation, token string) []api.Param {
	call := inv.Call
	params := call.Params()
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		seen[p.Key] = true
	}

	add := func(key, value string) {
		if value == "" || seen[key] {
			return
		}
		seen[key] = true
		params = append(params, api.Param{Key: key, Value: value})
	}

	for _, p := range inv.Extra {
		add(p.Key, p.Value)
	}

	add("lang", c.id.Lang)
	add("device_id", c.id.DeviceID)
	add("external_device_id", c.id.ExternalDeviceID)
	add("access_token", token)

	version := call.Version()
	if version == "" {
		version = c.id.Version
	}
	add("v", version)

	return params
}

// recordError counts the failure and attaches the access token to API
// errors so resolvers can remediate credentials.
func recordError(method string, err error, token string) {
	switch e := err.(type) {
	case *apierror.APIError:
		e.AccessToken = token
		metrics.ErrorsTotal.WithLabelValues(method, strconv.Itoa(e.Code)).Inc()
	case *apierror.ExecuteError:
		for _, sub := range e.Errors {
			sub.AccessToken = token
		}
		metrics.ErrorsTotal.WithLabelValues(method, strconv.Itoa(e.Code())).Inc()
	default:
		metrics.ErrorsTotal.WithLabelValues(method, "malformed").Inc()
		slog.Warn("malformed API response", "method", method, "error", err)
	}
}

// extractResponse returns the payload's "response" field, or the whole
// body for endpoints that answer without the envelope.
func extractResponse(body []byte) json.RawMessage {
	var env struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Response) > 0 {
		return env.Response
	}
	return json.RawMessage(body)
}
