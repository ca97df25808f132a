package scan

import (
	"fmt"
	"net/http"
	"strings"
)

// Passive detectors inspect the page and its initial response without
// issuing any HTTP request of their own.

// DetectCSRF flags POST forms that collect sensitive input without a
// csrf/token hidden field.
func DetectCSRF(page Page) []Finding {
	var findings []Finding
	for _, form := range page.Forms {
		if form.Method != http.MethodPost {
			continue
		}
		if !hasSensitiveInput(form) || hasCSRFToken(form) {
			continue
		}
		findings = append(findings, newFinding(
			"Cross-Site Request Forgery (CSRF)",
			CategoryCSRF,
			SeverityMedium,
			"POST "+form.Action,
			"Form submits sensitive data without an anti-CSRF token.",
			"An attacker can forge state-changing requests on behalf of an authenticated victim.",
			"",
		))
	}
	return findings
}

func hasSensitiveInput(form Form) bool {
	for _, in := range form.Inputs {
		if in.Type == "password" {
			return true
		}
		name := strings.ToLower(in.Name)
		if strings.Contains(name, "password") || strings.Contains(name, "email") {
			return true
		}
	}
	return false
}

func hasCSRFToken(form Form) bool {
	for _, in := range form.Inputs {
		if in.Type != "hidden" {
			continue
		}
		name := strings.ToLower(in.Name)
		if strings.Contains(name, "csrf") || strings.Contains(name, "token") {
			return true
		}
	}
	return false
}

// domSinks are the literal substrings that mark an inline script as a
// potential DOM XSS sink.
var domSinks = []string{"innerHTML", "document.write"}

// DetectDOMSinks flags inline scripts containing known DOM XSS sinks. One
// finding is emitted per distinct sink found in each script; repeated uses
// of the same sink within one script yield a single finding.
func DetectDOMSinks(page Page) []Finding {
	var findings []Finding
	for i, script := range page.InlineScripts {
		for _, sink := range domSinks {
			if !strings.Contains(script, sink) {
				continue
			}
			findings = append(findings, newFinding(
				"Potential DOM XSS",
				CategoryXSS,
				SeverityHigh,
				page.URL,
				fmt.Sprintf("Inline script %d uses %s with potentially attacker-controlled data.", i+1, sink),
				"Untrusted data flowing into this sink executes as script in the victim's browser.",
				"",
			))
		}
	}
	return findings
}

// DetectDisclosure inspects the initial response for a Server header leak
// and for database errors surfacing without any injection performed.
func DetectDisclosure(page Page, initial *ProbeResponse) []Finding {
	if initial == nil {
		return nil
	}
	var findings []Finding

	if server := header(initial.Headers, "Server"); server != "" {
		findings = append(findings, newFinding(
			"Server Header Disclosure",
			CategoryInfoDisclosure,
			SeverityLow,
			"HTTP Headers",
			fmt.Sprintf("Server header reveals software version: %s", server),
			"Version information helps an attacker pick known exploits for the exact server build.",
			"",
		))
	}

	if fp := matchSQLError(initial.Body); fp != "" {
		findings = append(findings, newFinding(
			"Database Error Disclosure",
			CategoryInfoDisclosure,
			SeverityMedium,
			page.URL,
			fmt.Sprintf("Page body contains a database error fingerprint (%q) without any probe sent.", fp),
			"Raw database errors leak schema and query details to anyone visiting the page.",
			"",
		))
	}

	return findings
}
