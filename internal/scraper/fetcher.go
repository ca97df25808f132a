package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/securescan/pkg/httpclient"
)

// ErrorKind classifies a fetch failure.
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindTimeout   ErrorKind = "timeout"
	KindTooLarge  ErrorKind = "too_large"
	KindBadStatus ErrorKind = "bad_status"
)

// FetchError is a per-request failure. 1xx-4xx responses are not errors;
// only 5xx, network, TLS and DNS failures produce one.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Request describes one probe or crawl fetch.
type Request struct {
	Method string
	URL    string
	// Params are merged into the URL query string.
	Params url.Values
	// Body is sent urlencoded for POST requests.
	Body url.Values
	// Headers are additional request headers.
	Headers map[string]string
}

// Response is the outcome of a successful fetch.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	FinalURL   string
	// Truncated is set when the body exceeded the configured cap and was
	// cut at the limit.
	Truncated bool
}

// FetchConfig configures the fetch primitive.
type FetchConfig struct {
	Timeout      time.Duration // default 10s, connect + read combined
	MaxRedirects int           // default 5
	MaxBodyBytes int64         // default 2 MiB
	UserAgent    string        // identifies the scanner
	// SameScope, if set, restricts redirects to in-scope targets
	// (crawler mode).
	SameScope func(*url.URL) bool
	// Transport overrides the HTTP transport, used by tests.
	Transport http.RoundTripper
}

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 5
	DefaultMaxBodyBytes = 2 << 20
	DefaultUserAgent    = "SecureScan-Worker/1.0"
)

// Fetcher performs single HTTP requests against the scan target. It carries
// a fixed User-Agent identity, keeps no cookies and never retries.
type Fetcher struct {
	cfg    FetchConfig
	client *httpclient.Client
}

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:       cfg.Timeout,
		MaxRedirects:  cfg.MaxRedirects,
		AllowRedirect: cfg.SameScope,
		Transport:     cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{cfg: cfg, client: client}, nil
}

// Get fetches targetURL with a plain GET.
func (f *Fetcher) Get(ctx context.Context, targetURL string) (*Response, error) {
	return f.Fetch(ctx, Request{Method: http.MethodGet, URL: targetURL})
}

// Fetch executes one request. Any 1xx-4xx response is returned as a
// success; 5xx and transport failures yield a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, r Request) (*Response, error) {
	target := r.URL
	if len(r.Params) > 0 {
		u, err := url.Parse(r.URL)
		if err != nil {
			return nil, &FetchError{Kind: KindNetwork, URL: r.URL, Err: err}
		}
		q := u.Query()
		for k, vs := range r.Params {
			q.Del(k)
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method == http.MethodPost && r.Body != nil {
		body = strings.NewReader(r.Body.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: target, Err: err}
	}

	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if method == http.MethodPost && r.Body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		return nil, &FetchError{Kind: classify(err), URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		// Drain a little so the connection can be reused, then fail.
		_, _ = io.CopyN(io.Discard, resp.Body, 512)
		return nil, &FetchError{
			Kind: KindBadStatus,
			URL:  target,
			Err:  fmt.Errorf("server returned %s", resp.Status),
		}
	}

	// Declared sizes far beyond the cap are refused outright rather than
	// streamed and thrown away.
	if resp.ContentLength > f.cfg.MaxBodyBytes*8 {
		return nil, &FetchError{
			Kind: KindTooLarge,
			URL:  target,
			Err:  fmt.Errorf("declared body of %d bytes exceeds limit", resp.ContentLength),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{Kind: classify(err), URL: target, Err: err}
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
		FinalURL:   target,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.FinalURL = resp.Request.URL.String()
	}
	if int64(len(data)) > f.cfg.MaxBodyBytes {
		out.Body = data[:f.cfg.MaxBodyBytes]
		out.Truncated = true
	}

	return out, nil
}

func classify(err error) ErrorKind {
	if err == nil {
		return KindNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "Client.Timeout exceeded") {
		return KindTimeout
	}
	return KindNetwork
}
