package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestClient_RedirectLimit(t *testing.T) {
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		n := strings.TrimPrefix(r.URL.Path, "/hop/")
		next := "/hop/" + n + "x"
		if len(n) > 10 {
			_, _ = w.Write([]byte("done"))
			return
		}
		http.Redirect(w, r, next, http.StatusFound)
	})

	c, err := New(Config{Timeout: 5 * time.Second, MaxRedirects: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/hop/x", nil)
	if _, err := c.Do(context.Background(), req); err == nil {
		t.Error("expected redirect limit error")
	}
}

func TestClient_NoRedirects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer ts.Close()

	c, err := New(Config{Timeout: 5 * time.Second, MaxRedirects: -1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want the unfollowed 302", resp.StatusCode)
	}
}

func TestClient_RedirectPolicy(t *testing.T) {
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/go", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://blocked.invalid/", http.StatusFound)
	})

	c, err := New(Config{
		Timeout:      5 * time.Second,
		MaxRedirects: 5,
		AllowRedirect: func(u *url.URL) bool {
			return !strings.Contains(u.Host, "blocked")
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/go", nil)
	if _, err := c.Do(context.Background(), req); err == nil {
		t.Error("policy-refused redirect should error")
	}
}

func TestClient_NilContext(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	if _, err := c.Do(nil, req); err == nil { //nolint:staticcheck
		t.Error("nil context must be rejected")
	}
}
