package apierror

// Server error codes the pipeline cares about. The full catalog is much
// larger; unknown codes still classify into a generic APIError.
const (
	// CodeCompositeExecuteError is never sent by the server. It marks an
	// ExecuteError aggregated from non-critical batch failures.
	CodeCompositeExecuteError = -1

	CodeUnknownError              = 1
	CodeAppDisabled               = 2
	CodeUnknownMethod             = 3
	CodeInvalidSignature          = 4
	CodeAuthorizationFailed       = 5
	CodeTooManyRequestsPerSecond  = 6
	CodeNoPermissions             = 7
	CodeInvalidRequest            = 8
	CodeTooManySimilarRequests    = 9
	CodeInternalServerError       = 10
	CodeCaptchaRequired           = 14
	CodeAccessDenied              = 15
	CodeUserValidationRequired    = 17
	CodePageBlocked               = 18
	CodeUserConfirmRequired       = 24
	CodeTokenConfirmationRequired = 25
	CodeRateLimitReached          = 29
	CodeNeedTokenExtension        = 3609
)

// criticalCodes are errors whose recovery needs a dedicated pipeline
// layer (credentials, validation, volume) rather than generic retry.
// A critical entry in a batched response fails the whole batch.
var criticalCodes = map[int]bool{
	CodeCaptchaRequired:           true,
	CodeUserValidationRequired:    true,
	CodeUserConfirmRequired:       true,
	CodeUnknownError:              true,
	CodeInternalServerError:       true,
	CodeTooManyRequestsPerSecond:  true,
	CodeTooManySimilarRequests:    true,
	CodeInvalidSignature:          true,
	CodeTokenConfirmationRequired: true,
	CodeAuthorizationFailed:       true,
}

// IsCritical reports whether code belongs to the critical set.
func IsCritical(code int) bool { return criticalCodes[code] }
