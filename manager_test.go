package vkclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/vkclient/api"
	"github.com/vietddude/vkclient/apierror"
	"github.com/vietddude/vkclient/internal/backoff"
	"github.com/vietddude/vkclient/internal/pipeline"
)

// testManager builds a Manager against the given test server with fast
// backoffs and an isolated too-many-requests gate.
func testManager(t *testing.T, serverURL string, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		BaseURL:          serverURL,
		AccessToken:      "tok",
		DeviceID:         "dev-test",
		TooManyBackoff:   5 * time.Millisecond,
		RateLimitBackoff: 5 * time.Millisecond,
		Timeout:          5 * time.Second,
		gate:             backoff.NewGate(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewManager(cfg)
}

func formOf(t *testing.T, r *http.Request) url.Values {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read request body: %v", err)
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		t.Fatalf("parse request body: %v", err)
	}
	return values
}

func TestExecute_SuccessfulCall(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/method/store.removeStickersFromFavorite" {
			t.Errorf("path = %q", r.URL.Path)
		}
		form = formOf(t, r)
		_, _ = w.Write([]byte(`{"response": 1}`))
	}))
	defer server.Close()

	m := testManager(t, server.URL, nil)
	call := api.NewCall("store.removeStickersFromFavorite").
		Ints("sticker_ids", []int{1, 2, 3}).
		Build()

	ok, err := m.ExecuteBool(context.Background(), call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected boolean-true result")
	}

	if got := form.Get("sticker_ids"); got != "1,2,3" {
		t.Errorf("sticker_ids = %q, want %q", got, "1,2,3")
	}
	if form.Get("access_token") != "tok" || form.Get("device_id") != "dev-test" {
		t.Errorf("injected identity missing: %v", form)
	}
	if form.Get("v") != defaultVersion {
		t.Errorf("v = %q, want %q", form.Get("v"), defaultVersion)
	}
}

func TestExecute_DecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response": [{"id": 1, "first_name": "Ada"}]}`))
	}))
	defer server.Close()

	m := testManager(t, server.URL, nil)

	var users []struct {
		ID        int    `json:"id"`
		FirstName string `json:"first_name"`
	}
	err := m.Execute(context.Background(), api.NewCall("users.get").Int("user_id", 1).Build(), &users)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 1 || users[0].FirstName != "Ada" {
		t.Errorf("users = %v", users)
	}
}

func TestExecute_CaptchaResolvedAndResent(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		form := formOf(t, r)
		atomic.AddInt32(&attempts, 1)
		if form.Get("captcha_key") == "" {
			_, _ = w.Write([]byte(`{"error": {"error_code": 14, "captcha_sid": "123", "captcha_img": "http://x"}}`))
			return
		}
		if form.Get("captcha_sid") != "123" || form.Get("captcha_key") != "h4rd" {
			t.Errorf("captcha params = %v", form)
		}
		_, _ = w.Write([]byte(`{"response": 1}`))
	}))
	defer server.Close()

	var challenged *apierror.APIError
	m := testManager(t, server.URL, func(cfg *Config) {
		cfg.Resolver = resolverFunc(func(_ context.Context, c *apierror.APIError) (Resolution, error) {
			challenged = c
			return Resolution{CaptchaKey: "h4rd"}, nil
		})
	})

	ok, err := m.ExecuteBool(context.Background(), api.NewCall("users.get").Build())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || atomic.LoadInt32(&attempts) != 2 {
		t.Errorf("ok=%v attempts=%d", ok, attempts)
	}

	if challenged == nil || challenged.Code != apierror.CodeCaptchaRequired {
		t.Fatalf("challenge = %v", challenged)
	}
	if !challenged.Critical() {
		t.Error("captcha challenge should be critical")
	}
	if challenged.Extra[apierror.ExtraCaptchaSID] != "123" ||
		challenged.Extra[apierror.ExtraCaptchaImg] != "http://x" {
		t.Errorf("challenge extras = %v", challenged.Extra)
	}
	if challenged.AccessToken != "tok" {
		t.Errorf("challenge token = %q, want the call's token", challenged.AccessToken)
	}
}

func TestExecute_ConsecutiveCaptchasEachAnswered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		form := formOf(t, r)
		sid, key := form.Get("captcha_sid"), form.Get("captcha_key")
		switch {
		case key == "":
			_, _ = w.Write([]byte(`{"error": {"error_code": 14, "captcha_sid": "A", "captcha_img": "http://x/A"}}`))
		case sid == "A" && key == "answer-A":
			_, _ = w.Write([]byte(`{"error": {"error_code": 14, "captcha_sid": "B", "captcha_img": "http://x/B"}}`))
		case sid == "B" && key == "answer-B":
			_, _ = w.Write([]byte(`{"response": 1}`))
		default:
			t.Errorf("stale captcha answer resent: sid=%q key=%q", sid, key)
			_, _ = w.Write([]byte(`{"error": {"error_code": 14, "captcha_sid": "` + sid + `", "captcha_img": "http://x"}}`))
		}
	}))
	defer server.Close()

	m := testManager(t, server.URL, func(cfg *Config) {
		cfg.Resolver = resolverFunc(func(_ context.Context, c *apierror.APIError) (Resolution, error) {
			return Resolution{CaptchaKey: "answer-" + c.Extra[apierror.ExtraCaptchaSID]}, nil
		})
	})

	ok, err := m.ExecuteBool(context.Background(), api.NewCall("users.get").Retries(1).Build())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected boolean-true result after both captchas")
	}
}

func TestExecute_SkipValidationSurfacesChallenge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": {"error_code": 14, "captcha_sid": "123", "captcha_img": "http://x"}}`))
	}))
	defer server.Close()

	resolverCalled := false
	m := testManager(t, server.URL, func(cfg *Config) {
		cfg.Resolver = resolverFunc(func(context.Context, *apierror.APIError) (Resolution, error) {
			resolverCalled = true
			return Resolution{}, nil
		})
	})

	_, err := m.ExecuteBool(context.Background(),
		api.NewCall("users.get").SkipValidation().Build())

	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != apierror.CodeCaptchaRequired {
		t.Fatalf("error = %v", err)
	}
	if resolverCalled {
		t.Error("resolver must not run when the call opts out of validation")
	}
}

func TestExecute_TooManyRequestsRetriesThenSurfaces(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		_, _ = w.Write([]byte(`{"error": {"error_code": 6, "error_msg": "Too many requests per second"}}`))
	}))
	defer server.Close()

	m := testManager(t, server.URL, nil)
	start := time.Now()
	_, err := m.ExecuteBool(context.Background(),
		api.NewCall("users.get").Retries(2).Build())

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want budget+1 = 3", got)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("no gate backoff between attempts: %v", elapsed)
	}
	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != apierror.CodeTooManyRequestsPerSecond {
		t.Errorf("surfaced error = %v, want the original code 6", err)
	}
}

func TestExecute_InternalErrorRetryRecovers(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			_, _ = w.Write([]byte(`{"error": {"error_code": 10, "error_msg": "Internal server error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"response": 1}`))
	}))
	defer server.Close()

	m := testManager(t, server.URL, nil)
	ok, err := m.ExecuteBool(context.Background(), api.NewCall("users.get").Retries(3).Build())
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestExecute_InvalidCredentialsObserved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": {"error_code": 5, "error_msg": "User authorization failed"}}`))
	}))
	defer server.Close()

	var observed int32
	m := testManager(t, server.URL, func(cfg *Config) {
		cfg.OnInvalidCredentials = func(err *apierror.APIError) {
			atomic.AddInt32(&observed, 1)
			if err.AccessToken != "tok" {
				t.Errorf("listener token = %q", err.AccessToken)
			}
		}
	})

	_, err := m.ExecuteBool(context.Background(), api.NewCall("users.get").Build())
	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != apierror.CodeAuthorizationFailed {
		t.Fatalf("error = %v", err)
	}
	if atomic.LoadInt32(&observed) != 1 {
		t.Errorf("listener called %d times, want 1", observed)
	}
}

func TestExecute_ExecuteErrorsAggregate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response": [],
			"execute_errors": [{"error_code": 15}, {"error_code": 113}]}`))
	}))
	defer server.Close()

	m := testManager(t, server.URL, nil)
	_, err := m.ExecuteRaw(context.Background(),
		api.NewCall("execute").Str("code", "return 1;").IgnoreExecuteErrors(113).Build())

	var execErr *apierror.ExecuteError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecuteError, got %T: %v", err, err)
	}
	if len(execErr.Errors) != 1 || execErr.Errors[0].Code != 15 {
		t.Errorf("sub-errors = %v", execErr.Errors)
	}
}

func TestExecute_TokenRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not go out without a token")
	}))
	defer server.Close()

	m := testManager(t, server.URL, func(cfg *Config) { cfg.AccessToken = "" })
	if _, err := m.ExecuteBool(context.Background(), api.NewCall("users.get").Build()); err == nil {
		t.Error("expected an error for a tokenless non-anonymous call")
	}
}

func TestExecute_AnonymousStripsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if form := formOf(t, r); form.Has("access_token") {
			t.Error("anonymous call leaked the access token")
		}
		_, _ = w.Write([]byte(`{"response": 1}`))
	}))
	defer server.Close()

	m := testManager(t, server.URL, nil)
	if _, err := m.ExecuteBool(context.Background(), api.NewCall("auth.getAnonymToken").Anonymous().Build()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecutePost_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		_, _ = w.Write([]byte(`{"response": {"photo": "saved"}}`))
	}))
	defer server.Close()

	m := testManager(t, server.URL, nil)
	post := api.NewPost(server.URL + "/upload").
		Field("album_id", "7").
		File("photo", "cat.jpg", []byte{0xff, 0xd8}).
		Build()

	raw, err := m.ExecutePost(context.Background(), post)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"photo": "saved"}` {
		t.Errorf("raw = %s", raw)
	}
}

type resolverFunc func(ctx context.Context, challenge *apierror.APIError) (Resolution, error)

func (f resolverFunc) Resolve(ctx context.Context, c *apierror.APIError) (Resolution, error) {
	return f(ctx, c)
}

var _ pipeline.ChallengeResolver = resolverFunc(nil)
