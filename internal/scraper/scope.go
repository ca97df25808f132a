package scraper

import (
	"net/url"
	"strings"
)

// DefaultExcludeTokens are substrings that take a URL out of scope. They
// cover state-changing endpoints the scanner must never hit plus hosts that
// are never the target.
var DefaultExcludeTokens = []string{
	"logout",
	"signout",
	"sign-out",
	"delete",
	"facebook.com",
	"twitter.com",
	"linkedin.com",
	"instagram.com",
	"youtube.com",
	"cdn.",
	"cdnjs.",
	"fonts.googleapis.com",
}

// DefaultAssetExtensions are path suffixes of static assets not worth
// scanning.
var DefaultAssetExtensions = []string{
	".css", ".js", ".jpg", ".png", ".gif", ".pdf", ".zip", ".svg", ".ico",
}

// relevantKeywords keep a URL in scope when an include list is active but
// none of its tokens match.
var relevantKeywords = []string{
	"login", "search", "form", "contact", "account", "profile", "admin",
	"user", "register", "signup", "comment", "query", "id=",
}

// Scope decides whether a URL may be crawled and scanned, given the seed.
// The zero rules fall back to the defaults above. Scope is a pure predicate
// and safe for concurrent use.
type Scope struct {
	root     string
	excludes []string
	assets   []string
	includes []string
}

// NewScope builds the scope policy for a seed URL. Include patterns are
// optional; when non-empty a URL must match one of them, be a root path, or
// contain a relevant keyword.
func NewScope(seed *url.URL, includes, excludes []string) *Scope {
	if excludes == nil {
		excludes = DefaultExcludeTokens
	}
	return &Scope{
		root:     rootDomain(seed.Hostname()),
		excludes: excludes,
		assets:   DefaultAssetExtensions,
		includes: includes,
	}
}

// Allows reports whether candidate is in scope.
func (s *Scope) Allows(candidate string) bool {
	u, err := url.Parse(candidate)
	if err != nil || !u.IsAbs() {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host != s.root && !strings.HasSuffix(host, "."+s.root) {
		return false
	}

	lowered := strings.ToLower(candidate)
	for _, token := range s.excludes {
		if strings.Contains(lowered, token) {
			return false
		}
	}

	path := strings.ToLower(u.Path)
	for _, ext := range s.assets {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}

	if len(s.includes) > 0 {
		if path == "" || path == "/" {
			return true
		}
		for _, token := range s.includes {
			if strings.Contains(lowered, strings.ToLower(token)) {
				return true
			}
		}
		for _, kw := range relevantKeywords {
			if strings.Contains(lowered, kw) {
				return true
			}
		}
		return false
	}

	return true
}

// AllowsURL is Allows for an already parsed URL.
func (s *Scope) AllowsURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	return s.Allows(u.String())
}

// rootDomain returns the last two DNS labels of host, or the whole host if
// it has two labels or fewer.
func rootDomain(host string) string {
	host = strings.ToLower(host)
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
