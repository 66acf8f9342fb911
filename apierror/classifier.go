package apierror

import (
	"encoding/json"
	"fmt"
	"slices"
)

// envelope is the failure surface of a response body. A body may carry
// a single error object, a batched execute_errors array, or neither.
type envelope struct {
	Error         json.RawMessage   `json:"error"`
	ExecuteErrors []json.RawMessage `json:"execute_errors"`
}

// errorPayload mirrors the wire shape of one error object.
type errorPayload struct {
	ErrorCode        *int            `json:"error_code"`
	ErrorMsg         string          `json:"error_msg"`
	CaptchaSID       string          `json:"captcha_sid"`
	CaptchaImg       string          `json:"captcha_img"`
	RedirectURI      string          `json:"redirect_uri"`
	ConfirmationText string          `json:"confirmation_text"`
	BanInfo          json.RawMessage `json:"ban_info"`
	ExtendHash       *string         `json:"extend_hash"`
}

// Classify inspects a full response body and returns the typed failure
// it carries, or nil when the body reports none. Batched entries whose
// codes are all in ignored do not count as a failure.
func Classify(body []byte, method string, ignored []int) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &MalformedResponseError{Method: method, Reason: "body is not a JSON object", Err: err}
	}
	if len(env.Error) > 0 {
		return ParseSingle(env.Error, method)
	}
	if hasExecuteErrors(env.ExecuteErrors, ignored) {
		return parseExecuteErrors(env.ExecuteErrors, method, ignored)
	}
	return nil
}

// ParseSingle turns one raw error object into a typed error: an
// *APIError for any recognizable payload, or a *MalformedResponseError
// when the object is structurally invalid or missing fields its code
// mandates.
func ParseSingle(raw json.RawMessage, method string) error {
	var p errorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &MalformedResponseError{Method: method, Reason: "error object is not valid JSON", Err: err}
	}
	if p.ErrorCode == nil {
		return &MalformedResponseError{Method: method, Reason: "error object has no error_code"}
	}

	apiErr := &APIError{
		Code:    *p.ErrorCode,
		Method:  method,
		Message: p.ErrorMsg,
	}

	extra := func(key, value string) {
		if apiErr.Extra == nil {
			apiErr.Extra = make(map[string]string)
		}
		apiErr.Extra[key] = value
	}

	switch apiErr.Code {
	case CodeCaptchaRequired:
		if p.CaptchaSID == "" || p.CaptchaImg == "" {
			return &MalformedResponseError{
				Method: method,
				Reason: fmt.Sprintf("code %d without captcha_sid/captcha_img", apiErr.Code),
			}
		}
		extra(ExtraCaptchaSID, p.CaptchaSID)
		extra(ExtraCaptchaImg, p.CaptchaImg)
	case CodeUserValidationRequired:
		if p.RedirectURI == "" {
			return &MalformedResponseError{
				Method: method,
				Reason: fmt.Sprintf("code %d without redirect_uri", apiErr.Code),
			}
		}
		extra(ExtraRedirectURI, p.RedirectURI)
	case CodeUserConfirmRequired:
		if p.ConfirmationText == "" {
			return &MalformedResponseError{
				Method: method,
				Reason: fmt.Sprintf("code %d without confirmation_text", apiErr.Code),
			}
		}
		extra(ExtraConfirmationText, p.ConfirmationText)
	case CodeAuthorizationFailed:
		// ban_info is optional; absent means a plain auth failure.
		if len(p.BanInfo) > 0 {
			apiErr.BanInfo = p.BanInfo
		}
	case CodeNeedTokenExtension:
		// The hash may be absent or empty.
		if p.ExtendHash != nil {
			extra(ExtraExtendHash, *p.ExtendHash)
		}
	}

	return apiErr
}

// HasExecuteErrors reports whether body carries a batched error section
// with at least one entry outside ignored. A nil or empty ignore list
// means any entry counts.
func HasExecuteErrors(body []byte, ignored []int) bool {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return hasExecuteErrors(env.ExecuteErrors, ignored)
}

func hasExecuteErrors(entries []json.RawMessage, ignored []int) bool {
	if len(entries) == 0 {
		return false
	}
	if len(ignored) == 0 {
		return true
	}
	for _, raw := range entries {
		var p errorPayload
		if err := json.Unmarshal(raw, &p); err != nil || p.ErrorCode == nil {
			// An undecodable entry cannot be on the ignore list.
			return true
		}
		if !slices.Contains(ignored, *p.ErrorCode) {
			return true
		}
	}
	return false
}

// ParseExecuteErrors classifies a batched error section. One malformed
// entry fails the whole batch with its MalformedResponseError. Ignored
// codes are skipped outright; the first critical entry among the rest
// is returned alone; otherwise the remaining entries aggregate, in
// encounter order, into an *ExecuteError.
func ParseExecuteErrors(body []byte, method string, ignored []int) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &MalformedResponseError{Method: method, Reason: "body is not a JSON object", Err: err}
	}
	return parseExecuteErrors(env.ExecuteErrors, method, ignored)
}

func parseExecuteErrors(entries []json.RawMessage, method string, ignored []int) error {
	var caught []*APIError
	for _, raw := range entries {
		parsed := ParseSingle(raw, method)
		apiErr, ok := parsed.(*APIError)
		if !ok {
			return parsed
		}
		if slices.Contains(ignored, apiErr.Code) {
			continue
		}
		if apiErr.Critical() {
			return apiErr
		}
		caught = append(caught, apiErr)
	}
	return &ExecuteError{Method: method, Errors: caught}
}
