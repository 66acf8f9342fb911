// Package transport performs the raw HTTP exchange for API calls. It
// knows nothing about error classification or retries; it hands raw
// response bodies back to the pipeline.
package transport

import (
	"context"
	"fmt"

	"github.com/vietddude/vkclient/api"
)

// Request is one fully-prepared method exchange: every injected
// parameter (token, device, version) is already in Params, in order.
type Request struct {
	Method string
	Params []api.Param
}

// Transport executes prepared requests. Implementations must be safe
// for concurrent use.
type Transport interface {
	// Call posts a method request and returns the raw response body.
	Call(ctx context.Context, req Request) ([]byte, error)
	// Post sends an upload call as multipart/form-data and returns the
	// raw response body.
	Post(ctx context.Context, call *api.PostCall) ([]byte, error)
}

// Error is an I/O-level failure: the exchange itself broke before a
// well-formed API response came back. No classifier layer retries it.
type Error struct {
	Method string
	Err    error
}

func (e *Error) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport (%s): %v", e.Method, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
