// Package vkclient executes JSON-over-HTTP API method calls through a
// recovery pipeline that survives the API's failure modes:
//
//   - internal server errors (cheap immediate retry)
//   - per-device rate limits (persisted backoff, survives restarts)
//   - request-volume throttling (process-wide shared backoff)
//   - expired credentials (listener notification, never suppressed)
//   - interactive challenges: captcha, validation, confirmation
//     (serialized through a single gate, one challenge at a time)
//
// Calls are described with api.NewCall, executed synchronously with
// Manager.Execute, and fail with typed errors from the apierror
// package. A single Manager is safe for concurrent use from any number
// of goroutines.
//
// Typical usage:
//
//	m := vkclient.NewManager(vkclient.Config{
//	    AccessToken: token,
//	    Resolver:    myCaptchaUI,
//	})
//	call := api.NewCall("store.removeStickersFromFavorite").
//	    Ints("sticker_ids", []int{1, 2, 3}).
//	    Retries(3).
//	    Build()
//	ok, err := m.ExecuteBool(ctx, call)
package vkclient
