package scan

import (
	"net/http"
	"strings"
	"testing"
)

func TestDetectCSRF_Scenario(t *testing.T) {
	page := Page{
		URL: "http://t/account",
		Forms: []Form{{
			Action: "http://t/save",
			Method: "POST",
			Inputs: []FormInput{{Name: "pw", Type: "password"}},
		}},
	}

	findings := DetectCSRF(page)
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
	f := findings[0]
	if f.Name != "Cross-Site Request Forgery (CSRF)" || f.Severity != SeverityMedium || f.Category != CategoryCSRF {
		t.Errorf("unexpected finding: %+v", f)
	}
	if f.Location != "POST http://t/save" {
		t.Errorf("location = %q, want POST http://t/save", f.Location)
	}
}

func TestDetectCSRF_Negative(t *testing.T) {
	tests := []struct {
		name string
		form Form
	}{
		{
			name: "token present",
			form: Form{
				Action: "http://t/save", Method: "POST",
				Inputs: []FormInput{
					{Name: "password", Type: "password"},
					{Name: "csrf_token", Type: "hidden"},
				},
			},
		},
		{
			name: "GET form",
			form: Form{
				Action: "http://t/search", Method: "GET",
				Inputs: []FormInput{{Name: "email", Type: "text"}},
			},
		},
		{
			name: "nothing sensitive",
			form: Form{
				Action: "http://t/filter", Method: "POST",
				Inputs: []FormInput{{Name: "sort", Type: "text"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectCSRF(Page{URL: "http://t/", Forms: []Form{tt.form}}); len(got) != 0 {
				t.Errorf("findings = %d, want 0", len(got))
			}
		})
	}
}

func TestDetectCSRF_SensitiveByName(t *testing.T) {
	page := Page{
		URL: "http://t/",
		Forms: []Form{{
			Action: "http://t/subscribe", Method: "POST",
			Inputs: []FormInput{{Name: "user_email", Type: "text"}},
		}},
	}
	if got := DetectCSRF(page); len(got) != 1 {
		t.Errorf("email-named input should count as sensitive, got %d findings", len(got))
	}
}

func TestDetectDOMSinks(t *testing.T) {
	page := Page{
		URL: "http://t/app",
		InlineScripts: []string{
			`var x = document.location.hash; el.innerHTML = x;`,
			`console.log("clean");`,
			`document.write(location.search); el.innerHTML = q;`,
		},
	}

	findings := DetectDOMSinks(page)
	// Script 1 has one sink, script 3 has both: one finding per occurrence.
	if len(findings) != 3 {
		t.Fatalf("findings = %d, want 3", len(findings))
	}
	for _, f := range findings {
		if f.Name != "Potential DOM XSS" || f.Severity != SeverityHigh || f.Category != CategoryXSS {
			t.Errorf("unexpected finding: %+v", f)
		}
		if f.Location != page.URL {
			t.Errorf("location = %q, want page URL", f.Location)
		}
	}
}

func TestDetectDisclosure_ServerHeader(t *testing.T) {
	page := Page{URL: "http://t/"}
	initial := &ProbeResponse{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Server": {"nginx/1.18.0"}},
		Body:       []byte("<html></html>"),
	}

	findings := DetectDisclosure(page, initial)
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
	f := findings[0]
	if f.Category != CategoryInfoDisclosure || f.Severity != SeverityLow {
		t.Errorf("unexpected finding: %+v", f)
	}
	if f.Location != "HTTP Headers" {
		t.Errorf("location = %q, want HTTP Headers", f.Location)
	}
	if !strings.Contains(f.Description, "nginx/1.18.0") {
		t.Errorf("description should carry the header value: %q", f.Description)
	}
}

func TestDetectDisclosure_DatabaseError(t *testing.T) {
	page := Page{URL: "http://t/broken"}
	initial := &ProbeResponse{
		StatusCode: http.StatusOK,
		Body:       []byte("Warning: mysql_fetch_array() expects parameter 1"),
	}

	findings := DetectDisclosure(page, initial)
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
	if findings[0].Severity != SeverityMedium || findings[0].Location != page.URL {
		t.Errorf("unexpected finding: %+v", findings[0])
	}
}

func TestDetectDisclosure_NilInitial(t *testing.T) {
	if got := DetectDisclosure(Page{URL: "http://t/"}, nil); got != nil {
		t.Errorf("nil initial response should yield nothing, got %v", got)
	}
}

func TestDedupe(t *testing.T) {
	a := newFinding("X", CategoryXSS, SeverityHigh, "GET http://t/a", "", "", "q")
	b := newFinding("X", CategoryXSS, SeverityHigh, "GET http://t/a", "", "", "q")
	c := newFinding("X", CategoryXSS, SeverityHigh, "GET http://t/b", "", "", "q")

	out := Dedupe([]Finding{a, b, c})
	if len(out) != 2 {
		t.Fatalf("deduped = %d, want 2", len(out))
	}
	if out[0].ID != a.ID || out[1].ID != c.ID {
		t.Error("dedupe should keep first occurrences")
	}

	again := Dedupe(out)
	if len(again) != len(out) {
		t.Error("dedupe must be idempotent")
	}
}
