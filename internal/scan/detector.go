package scan

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ProbeResponse is the slice of an HTTP response the detectors inspect.
type ProbeResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Prober issues HTTP probes on behalf of the active detectors. The worker
// pool provides the implementation so every probe passes through the global
// rate limit and in-flight accounting.
type Prober interface {
	Probe(ctx context.Context, method, target string, params, body url.Values) (*ProbeResponse, error)
}

// newFinding mints a Finding with a unique id.
func newFinding(name string, category Category, severity Severity, location, description, impact, input string) Finding {
	return Finding{
		ID:          uuid.New().String(),
		Name:        name,
		Category:    category,
		Severity:    severity,
		Description: description,
		Location:    location,
		Impact:      impact,
		Input:       input,
	}
}

// containsFold reports whether body contains needle, case-insensitively.
func containsFold(body []byte, needle string) bool {
	return strings.Contains(strings.ToLower(string(body)), strings.ToLower(needle))
}

// matchSQLError returns the first database error fingerprint found in body,
// or "" if none match.
func matchSQLError(body []byte) string {
	lowered := strings.ToLower(string(body))
	for _, fp := range SQLErrors {
		if strings.Contains(lowered, strings.ToLower(fp)) {
			return fp
		}
	}
	return ""
}

// Dedupe removes findings that repeat the same (name, location, input)
// triple, keeping the first occurrence. It is idempotent.
func Dedupe(findings []Finding) []Finding {
	seen := make(map[string]struct{}, len(findings))
	out := findings[:0]
	for _, f := range findings {
		key := f.Name + "|" + f.Location + "|" + f.Input
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

// header returns the first value of key from h, tolerating case mismatches.
func header(h http.Header, key string) string {
	if h == nil {
		return ""
	}
	if v := h.Get(key); v != "" {
		return v
	}
	lowered := strings.ToLower(key)
	for k, vals := range h {
		if strings.ToLower(k) == lowered && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}
