// Package pipeline implements the request execution pipeline: an
// ordered chain of recovery policies wrapped around the transport
// exchange. Each link decides, per classified error, whether to retry
// downstream or pass the error through untouched.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vietddude/vkclient/api"
	"github.com/vietddude/vkclient/apierror"
)

// Invocation is the mutable per-call state threaded through the chain.
// Exactly one of Call and Post is set.
type Invocation struct {
	Method  string
	Retries int

	Call *api.MethodCall
	Post *api.PostCall

	// Extra holds per-attempt parameters added by outer links, such as
	// a resolved captcha answer. The innermost link merges them in.
	Extra []api.Param
}

// Chain is one link of the pipeline. Call runs the invocation through
// this link and everything below it.
type Chain interface {
	Call(ctx context.Context, inv *Invocation) (json.RawMessage, error)
}

// Resolution is the outcome of a successfully resolved interactive
// challenge.
type Resolution struct {
	// CaptchaKey is the user's captcha answer. Set only for captcha
	// challenges; the retry carries it as captcha_sid/captcha_key.
	CaptchaKey string
}

// ChallengeResolver presents an interactive challenge (captcha,
// validation redirect, confirmation) to the user and blocks until it is
// resolved or abandoned. Abandonment is reported as an error.
type ChallengeResolver interface {
	Resolve(ctx context.Context, challenge *apierror.APIError) (Resolution, error)
}

// CredentialsListener is notified when a call fails with an
// authorization error. It runs synchronously on the calling goroutine,
// at least once per failing call.
type CredentialsListener func(err *apierror.APIError)

// PriorityBackoff spaces calls by method class. Wait blocks until the
// method may proceed.
type PriorityBackoff interface {
	Wait(ctx context.Context, method string) error
}

// asAPIError extracts a classified API error, nil otherwise.
func asAPIError(err error) *apierror.APIError {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
