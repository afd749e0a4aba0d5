package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetClassifiesStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New("", time.Second)
	_, err := c.Get(context.Background(), srv.URL, Options{})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Kind != ErrHTTPStatus || fe.StatusCode != 404 {
		t.Errorf("got kind=%s status=%d", fe.Kind, fe.StatusCode)
	}
	if fe.Retryable() {
		t.Error("404 must not be retryable")
	}
}

func TestGetClassifiesServerErrorsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New("", time.Second)
	_, err := c.Get(context.Background(), srv.URL, Options{})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v", err)
	}
	if !fe.Retryable() {
		t.Error("502 should be retryable")
	}
}

func TestGetClassifiesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New("", time.Second)
	_, err := c.Get(context.Background(), srv.URL, Options{Timeout: 20 * time.Millisecond})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v", err)
	}
	if fe.Kind != ErrTimeout || !fe.Retryable() {
		t.Errorf("kind = %s, want timeout (retryable)", fe.Kind)
	}
}

func TestGetConnectionRefused(t *testing.T) {
	c := New("", time.Second)
	// Nothing listens here.
	_, err := c.Get(context.Background(), "http://127.0.0.1:1", Options{})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v", err)
	}
	if !fe.Retryable() {
		t.Error("connection errors should be retryable")
	}
}

func TestGetEmptyBodyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := New("", time.Second)
	_, err := c.Get(context.Background(), srv.URL, Options{})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v", err)
	}
	if fe.Kind != ErrMalformed || fe.Retryable() {
		t.Errorf("kind = %s, want malformed (terminal)", fe.Kind)
	}
}

func TestGetReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New("", time.Second)
	body, err := c.Get(context.Background(), srv.URL, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
}
