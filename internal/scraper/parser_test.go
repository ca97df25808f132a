package scraper

import (
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestParsePage_TitleAndLinks(t *testing.T) {
	base := mustParse(t, "http://example.com/dir/page")
	body := []byte(`<html><head><title> Welcome </title></head><body>
		<a href="/one">One</a>
		<a href="two">Two</a>
		<a href="/one#section">One again</a>
		<a href="http://other.com/x">External</a>
	</body></html>`)

	parsed := ParsePage(base, body, "text/html; charset=utf-8")

	if parsed.Title != "Welcome" {
		t.Errorf("title = %q, want %q", parsed.Title, "Welcome")
	}

	want := []string{
		"http://example.com/one",
		"http://example.com/dir/two",
		"http://other.com/x",
	}
	if len(parsed.Links) != len(want) {
		t.Fatalf("links = %v, want %v", parsed.Links, want)
	}
	for i, link := range want {
		if parsed.Links[i] != link {
			t.Errorf("links[%d] = %q, want %q", i, parsed.Links[i], link)
		}
	}
}

func TestParsePage_NonHTML(t *testing.T) {
	base := mustParse(t, "http://example.com/data")
	parsed := ParsePage(base, []byte(`{"a": "<a href=\"/x\">"}`), "application/json")
	if len(parsed.Links) != 0 || len(parsed.Forms) != 0 {
		t.Errorf("non-HTML content should yield no links/forms, got %v / %v", parsed.Links, parsed.Forms)
	}
}

func TestParsePage_Forms(t *testing.T) {
	base := mustParse(t, "http://example.com/login")
	body := []byte(`<html><body>
		<form method="post" action="/auth">
			<input type="text" name="user" value="bob" required>
			<input type="PASSWORD" name="pass">
			<input type="submit" value="Go">
			<input name="plain">
		</form>
		<form method="put">
			<textarea name="comment"></textarea>
		</form>
	</body></html>`)

	parsed := ParsePage(base, body, "text/html")
	if len(parsed.Forms) != 2 {
		t.Fatalf("forms = %d, want 2", len(parsed.Forms))
	}

	first := parsed.Forms[0]
	if first.Action != "http://example.com/auth" {
		t.Errorf("action = %q, want resolved /auth", first.Action)
	}
	if first.Method != "POST" {
		t.Errorf("method = %q, want POST", first.Method)
	}
	// The unnamed submit input is dropped
	if len(first.Inputs) != 3 {
		t.Fatalf("inputs = %d, want 3", len(first.Inputs))
	}
	if first.Inputs[0].Name != "user" || !first.Inputs[0].Required || first.Inputs[0].Value != "bob" {
		t.Errorf("unexpected first input: %+v", first.Inputs[0])
	}
	if first.Inputs[1].Type != "password" {
		t.Errorf("type = %q, want lower-cased password", first.Inputs[1].Type)
	}
	if first.Inputs[2].Type != "text" {
		t.Errorf("missing type should default to text, got %q", first.Inputs[2].Type)
	}

	second := parsed.Forms[1]
	if second.Method != "GET" {
		t.Errorf("non-POST method should coerce to GET, got %q", second.Method)
	}
	if second.Action != "http://example.com/login" {
		t.Errorf("missing action should default to page URL, got %q", second.Action)
	}
}

func TestParsePage_InlineScripts(t *testing.T) {
	base := mustParse(t, "http://example.com/")
	body := []byte(`<html><body>
		<script src="/app.js"></script>
		<script>document.getElementById("x").innerHTML = loc;</script>
	</body></html>`)

	parsed := ParsePage(base, body, "text/html")
	if len(parsed.InlineScripts) != 1 {
		t.Fatalf("inline scripts = %d, want 1 (external src excluded)", len(parsed.InlineScripts))
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTP://Example.COM:80/path?q=Keep#frag", "http://example.com/path?q=Keep"},
		{"https://example.com:443/", "https://example.com/"},
		{"https://example.com:8443/x", "https://example.com:8443/x"},
		{"http://example.com/a?b=1&a=2", "http://example.com/a?b=1&a=2"},
	}
	for _, tt := range tests {
		got, err := Canonicalize(tt.in)
		if err != nil {
			t.Fatalf("Canonicalize(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
