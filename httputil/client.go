package httputil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// FetchErrorKind classifies a failed fetch so callers can decide between
// retrying and giving up. No retries happen at this layer.
type FetchErrorKind int

const (
	ErrTimeout FetchErrorKind = iota
	ErrConnection
	ErrHTTPStatus
	ErrMalformed
)

func (k FetchErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrConnection:
		return "connection"
	case ErrHTTPStatus:
		return "http_status"
	case ErrMalformed:
		return "malformed"
	}
	return "unknown"
}

type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == ErrHTTPStatus {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying: timeouts,
// connection errors and 5xx responses are; 4xx and malformed bodies are not.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case ErrTimeout, ErrConnection:
		return true
	case ErrHTTPStatus:
		return e.StatusCode >= 500
	}
	return false
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options controls a single fetch.
type Options struct {
	Timeout         time.Duration
	FollowRedirects bool
	Headers         map[string]string
}

// Client wraps outbound requests with timeouts, redirect handling, and
// uniform error classification.
type Client struct {
	scraping *http.Client // proxied if configured, no redirect following
	direct   *http.Client // redirect-following, for APIs and image CDNs
	timeout  time.Duration
}

// New builds a fetch client. proxyURL may be empty; timeout is the default
// per-request deadline when Options doesn't override it.
func New(proxyURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := &http.Transport{
		ForceAttemptHTTP2: false,
		TLSNextProto:      make(map[string]func(string, *tls.Conn) http.RoundTripper),
	}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	return &Client{
		scraping: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		direct:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Get fetches a URL and returns the body bytes, classifying any failure as
// a *FetchError.
func (c *Client) Get(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: ErrMalformed, URL: rawURL, Err: err}
	}

	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	client := c.scraping
	if opts.FollowRedirects {
		client = c.direct
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Kind: ErrHTTPStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(rawURL, err)
	}
	if len(body) == 0 {
		return nil, &FetchError{Kind: ErrMalformed, URL: rawURL, Err: errors.New("empty body")}
	}

	return body, nil
}

// Download fetches a binary resource (images), always following redirects.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &FetchError{Kind: ErrMalformed, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := c.direct.Do(req)
	if err != nil {
		return nil, "", classifyTransportError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &FetchError{Kind: ErrHTTPStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 50*1024*1024))
	if err != nil {
		return nil, "", classifyTransportError(rawURL, err)
	}
	if len(data) == 0 {
		return nil, "", &FetchError{Kind: ErrMalformed, URL: rawURL, Err: errors.New("empty body")}
	}

	return data, resp.Header.Get("Content-Type"), nil
}

func classifyTransportError(rawURL string, err error) *FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: ErrTimeout, URL: rawURL, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: ErrTimeout, URL: rawURL, Err: err}
	}
	return &FetchError{Kind: ErrConnection, URL: rawURL, Err: err}
}
