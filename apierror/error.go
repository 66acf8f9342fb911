// Package apierror classifies raw API failure payloads into typed
// errors the execution pipeline can act on.
package apierror

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extra keys attached to an APIError, named after the wire fields they
// come from.
const (
	ExtraCaptchaSID       = "captcha_sid"
	ExtraCaptchaImg       = "captcha_img"
	ExtraRedirectURI      = "redirect_uri"
	ExtraConfirmationText = "confirmation_text"
	ExtraExtendHash       = "extend_hash"
)

// APIError is a well-formed server-reported failure.
type APIError struct {
	// Code is the server's error_code, or CodeCompositeExecuteError.
	Code int
	// Method is the originating method. Empty for single calls.
	Method string
	// Message is the server's human-readable error_msg.
	Message string
	// Extra holds code-specific context (captcha session, redirect URI,
	// confirmation text, token extension hash).
	Extra map[string]string
	// BanInfo is the raw ban_info object for authorization failures,
	// nil when absent.
	BanInfo json.RawMessage
	// AccessToken is the token the failing call was made with, attached
	// for remediation. Empty when the call carried none.
	AccessToken string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api error %d", e.Code)
	if e.Method != "" {
		fmt.Fprintf(&b, " (%s)", e.Method)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Critical reports whether this error's code is in the critical set.
func (e *APIError) Critical() bool { return IsCritical(e.Code) }

// ExecuteError aggregates the non-critical failures of a partially
// failed batched call, in encounter order. Its code is always
// CodeCompositeExecuteError.
type ExecuteError struct {
	Method string
	Errors []*APIError
}

func (e *ExecuteError) Error() string {
	codes := make([]string, len(e.Errors))
	for i, sub := range e.Errors {
		codes[i] = fmt.Sprintf("%d", sub.Code)
	}
	var b strings.Builder
	b.WriteString("execute error")
	if e.Method != "" {
		fmt.Fprintf(&b, " (%s)", e.Method)
	}
	fmt.Fprintf(&b, ": codes [%s]", strings.Join(codes, " "))
	return b.String()
}

// Code returns the synthetic aggregate code.
func (e *ExecuteError) Code() int { return CodeCompositeExecuteError }

// Unwrap exposes the sub-errors to errors.Is/As.
func (e *ExecuteError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, sub := range e.Errors {
		out[i] = sub
	}
	return out
}

// MalformedResponseError marks a payload that is structurally
// unparseable or missing fields its error code mandates. It is fatal
// for the attempt; no pipeline layer retries it.
type MalformedResponseError struct {
	Method string
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	msg := fmt.Sprintf("malformed response: %s", e.Reason)
	if e.Method != "" {
		msg = fmt.Sprintf("malformed response for %s: %s", e.Method, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
