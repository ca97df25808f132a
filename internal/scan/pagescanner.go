package scan

import (
	"context"
	"log/slog"
	"net/http"
)

// PageResult is what scanning one page produced.
type PageResult struct {
	PageURL         string
	Findings        []Finding
	FormsFound      int
	EndpointsTested int
}

// PageScanner applies the full detector catalogue to one page: passive
// detectors over the parsed page and its initial response first, then the
// active XSS and SQL injection probes. All HTTP traffic goes through the
// supplied Prober so it is rate-limited and accounted like any other
// request.
type PageScanner struct {
	prober Prober
	logger *slog.Logger
}

// NewPageScanner builds a scanner over the given prober.
func NewPageScanner(prober Prober, logger *slog.Logger) *PageScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageScanner{prober: prober, logger: logger}
}

// Scan runs every detector against the page. Per-probe failures are logged
// and skipped; the only fatal error is a cancelled context.
func (s *PageScanner) Scan(ctx context.Context, page Page) (PageResult, error) {
	result := PageResult{
		PageURL:    page.URL,
		FormsFound: len(page.Forms),
	}

	// The initial fetch feeds the passive detectors. Losing it degrades
	// disclosure checks but the rest of the catalogue still runs.
	initial, err := s.prober.Probe(ctx, http.MethodGet, page.URL, nil, nil)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s.logger.Warn("initial page fetch failed", "url", page.URL, "err", err)
	}

	// Passive first: no HTTP cost.
	result.Findings = append(result.Findings, DetectCSRF(page)...)
	result.Findings = append(result.Findings, DetectDOMSinks(page)...)
	result.Findings = append(result.Findings, DetectDisclosure(page, initial)...)

	// Active probes, XSS before SQLi, forms before URL parameters.
	for _, active := range []func(context.Context, Prober, Page, *slog.Logger) ([]Finding, int){
		DetectFormXSS,
		DetectURLXSS,
		DetectFormSQLi,
		DetectURLSQLi,
	} {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		findings, attempts := active(ctx, s.prober, page, s.logger)
		result.Findings = append(result.Findings, findings...)
		result.EndpointsTested += attempts
	}

	result.Findings = Dedupe(result.Findings)
	return result, nil
}
