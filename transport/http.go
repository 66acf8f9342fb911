package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/vkclient/api"
)

// HTTPTransport sends method calls as form-encoded POSTs to
// <base>/method/<name> and uploads as multipart POSTs to their own URL.
type HTTPTransport struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.httpClient = c }
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) HTTPOption {
	return func(t *HTTPTransport) { t.userAgent = ua }
}

// NewHTTPTransport creates a transport for the given API base URL.
func NewHTTPTransport(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Call posts the method request and returns the raw body.
func (t *HTTPTransport) Call(ctx context.Context, reqData Request) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/method/%s", t.baseURL, reqData.Method)
	body := encodeForm(reqData.Params)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, &Error{Method: reqData.Method, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	return t.do(req, reqData.Method)
}

// Post sends the upload call as multipart/form-data.
func (t *HTTPTransport) Post(ctx context.Context, call *api.PostCall) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range call.Form() {
		if err := w.WriteField(f.Key, f.Value); err != nil {
			return nil, &Error{Err: fmt.Errorf("write field %s: %w", f.Key, err)}
		}
	}
	for _, f := range call.Files() {
		part, err := w.CreateFormFile(f.Field, f.FileName)
		if err != nil {
			return nil, &Error{Err: fmt.Errorf("create part %s: %w", f.Field, err)}
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, &Error{Err: fmt.Errorf("write part %s: %w", f.Field, err)}
		}
	}
	if err := w.Close(); err != nil {
		return nil, &Error{Err: fmt.Errorf("finish multipart body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.URL(), &buf)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	return t.do(req, "")
}

func (t *HTTPTransport) do(req *http.Request, method string) ([]byte, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Method: method, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Method: method, Err: fmt.Errorf("read response: %w", err)}
	}

	// The API reports failures inside a 200 body; any other status is a
	// transport-level fault.
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Method: method, Err: fmt.Errorf("http %d: %s", resp.StatusCode, body)}
	}

	return body, nil
}

// encodeForm url-encodes params preserving their insertion order.
// url.Values would re-sort keys, which breaks the ordering contract.
func encodeForm(params []api.Param) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}
