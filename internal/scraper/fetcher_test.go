package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestFetcher(t *testing.T, cfg FetchConfig) *Fetcher {
	t.Helper()
	f, err := NewFetcher(cfg)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f
}

func TestFetcher_IdentityAndParams(t *testing.T) {
	var gotUA, gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	f := newTestFetcher(t, FetchConfig{})
	resp, err := f.Fetch(context.Background(), Request{
		Method: http.MethodGet,
		URL:    ts.URL + "/search?q=old",
		Params: url.Values{"q": {"new"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
	if gotQuery != "q=new" {
		t.Errorf("query = %q, want params to replace existing value", gotQuery)
	}
}

func TestFetcher_PostBody(t *testing.T) {
	var gotCT, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		gotBody = r.PostForm.Encode()
	}))
	defer ts.Close()

	f := newTestFetcher(t, FetchConfig{})
	_, err := f.Fetch(context.Background(), Request{
		Method: http.MethodPost,
		URL:    ts.URL + "/submit",
		Body:   url.Values{"user": {"a"}, "pass": {"b"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCT != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotCT)
	}
	if gotBody != "pass=b&user=a" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestFetcher_ClientErrorsAreSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer ts.Close()

	f := newTestFetcher(t, FetchConfig{})
	resp, err := f.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("4xx must not be an error, got %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestFetcher_ServerErrorFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	f := newTestFetcher(t, FetchConfig{})
	_, err := f.Get(context.Background(), ts.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FetchError, got %v", err)
	}
	if fe.Kind != KindBadStatus {
		t.Errorf("kind = %q, want %q", fe.Kind, KindBadStatus)
	}
}

func TestFetcher_TruncatesOversizedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer ts.Close()

	f := newTestFetcher(t, FetchConfig{MaxBodyBytes: 1024})
	resp, err := f.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Truncated {
		t.Error("expected Truncated flag")
	}
	if len(resp.Body) != 1024 {
		t.Errorf("body length = %d, want 1024", len(resp.Body))
	}
}

func TestFetcher_RedirectScopeRefusal(t *testing.T) {
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/away", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://external.invalid/", http.StatusFound)
	})
	mux.HandleFunc("/near", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landed", http.StatusFound)
	})
	mux.HandleFunc("/landed", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("here"))
	})

	tsURL := mustParse(t, ts.URL)
	f := newTestFetcher(t, FetchConfig{
		SameScope: func(u *url.URL) bool { return u.Host == tsURL.Host },
	})

	if _, err := f.Get(context.Background(), ts.URL+"/away"); err == nil {
		t.Error("cross-scope redirect should fail")
	}

	resp, err := f.Get(context.Background(), ts.URL+"/near")
	if err != nil {
		t.Fatalf("in-scope redirect: %v", err)
	}
	if !strings.HasSuffix(resp.FinalURL, "/landed") {
		t.Errorf("FinalURL = %q, want the redirect target", resp.FinalURL)
	}
}
