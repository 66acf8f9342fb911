package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/vietddude/vkclient/api"
	"github.com/vietddude/vkclient/apierror"
	"github.com/vietddude/vkclient/metrics"
)

// validationChain handles interactive challenges: captcha, user
// validation and confirmation. Resolution is serialized through the
// gate, and a resolved captcha answer is re-sent with the next attempt.
type validationChain struct {
	next     Chain
	gate     *Gate
	resolver ChallengeResolver
}

// WithValidation wraps next with interactive challenge handling.
func WithValidation(next Chain, gate *Gate, resolver ChallengeResolver) Chain {
	return &validationChain{next: next, gate: gate, resolver: resolver}
}

func (c *validationChain) Call(ctx context.Context, inv *Invocation) (json.RawMessage, error) {
	// Each resolved challenge grants one more attempt; the budget caps
	// how many resolutions a single invocation may go through.
	resolutions := 0
	for {
		result, err := c.next.Call(ctx, inv)
		if err == nil {
			return result, nil
		}

		apiErr := asAPIError(err)
		if apiErr == nil || !isChallenge(apiErr.Code) || c.resolver == nil {
			return nil, err
		}
		if resolutions > inv.Retries {
			return nil, err
		}

		// Sample before queueing on the gate: if a resolution completes
		// while we wait, the holder may have fixed the condition for us
		// and we retry without bothering the user again.
		observed := c.gate.Seq()

		var resolution Resolution
		resolved, rerr := c.gate.Resolve(observed, func() error {
			var resolveErr error
			resolution, resolveErr = c.resolver.Resolve(ctx, apiErr)
			return resolveErr
		})
		if rerr != nil {
			// Abandoned: surface the original challenge.
			metrics.ValidationsTotal.WithLabelValues("abandoned").Inc()
			slog.Debug("challenge abandoned", "method", inv.Method, "code", apiErr.Code)
			return nil, err
		}
		if !resolved {
			metrics.ValidationsTotal.WithLabelValues("skipped").Inc()
			continue
		}

		metrics.ValidationsTotal.WithLabelValues("resolved").Inc()
		resolutions++
		if apiErr.Code == apierror.CodeCaptchaRequired && resolution.CaptchaKey != "" {
			// Replace, not append: a later challenge in the same
			// invocation must supersede the previous answer.
			setExtra(inv, "captcha_sid", apiErr.Extra[apierror.ExtraCaptchaSID])
			setExtra(inv, "captcha_key", resolution.CaptchaKey)
		}
	}
}

func setExtra(inv *Invocation, key, value string) {
	for i := range inv.Extra {
		if inv.Extra[i].Key == key {
			inv.Extra[i].Value = value
			return
		}
	}
	inv.Extra = append(inv.Extra, api.Param{Key: key, Value: value})
}

func isChallenge(code int) bool {
	switch code {
	case apierror.CodeCaptchaRequired,
		apierror.CodeUserValidationRequired,
		apierror.CodeUserConfirmRequired:
		return true
	}
	return false
}
