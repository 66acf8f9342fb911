package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/vkclient/api"
)

func TestHTTPTransport_Call(t *testing.T) {
	var gotPath, gotBody, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotPath = r.URL.Path
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{"response": 1}`))
	}))
	defer server.Close()

	tp := NewHTTPTransport(server.URL, 5*time.Second)
	body, err := tp.Call(context.Background(), Request{
		Method: "users.get",
		Params: []api.Param{
			{Key: "user_ids", Value: "1,2"},
			{Key: "access_token", Value: "tok"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/method/users.get" {
		t.Errorf("path = %q", gotPath)
	}
	// Insertion order is preserved on the wire.
	if gotBody != "user_ids=1%2C2&access_token=tok" {
		t.Errorf("body = %q", gotBody)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", gotContentType)
	}
	if string(body) != `{"response": 1}` {
		t.Errorf("response = %q", body)
	}
}

func TestHTTPTransport_NonOKStatusIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	tp := NewHTTPTransport(server.URL, 5*time.Second)
	_, err := tp.Call(context.Background(), Request{Method: "users.get"})

	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *transport.Error, got %T: %v", err, err)
	}
	if terr.Method != "users.get" {
		t.Errorf("method = %q", terr.Method)
	}
}

func TestHTTPTransport_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("album_id"); got != "7" {
			t.Errorf("album_id = %q", got)
		}
		file, header, err := r.FormFile("photo")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "cat.jpg" {
			t.Errorf("filename = %q", header.Filename)
		}
		_, _ = w.Write([]byte(`{"response": {"id": 9}}`))
	}))
	defer server.Close()

	post := api.NewPost(server.URL + "/upload").
		Field("album_id", "7").
		File("photo", "cat.jpg", []byte{0xff, 0xd8}).
		Build()

	tp := NewHTTPTransport("https://unused", 5*time.Second)
	body, err := tp.Post(context.Background(), post)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(body), `"id": 9`) {
		t.Errorf("body = %q", body)
	}
}

func TestHTTPTransport_ContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	tp := NewHTTPTransport(server.URL, 5*time.Second)
	_, err := tp.Call(ctx, Request{Method: "users.get"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}
