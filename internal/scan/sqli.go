package scan

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// numericSentinel fills the inputs not under test during SQL fuzzing.
// A numeric filler triggers numeric query contexts the "test" string skips.
const numericSentinel = "1"

// quoteProbe is the single-quote probe for URL parameters.
const quoteProbe = "'"

// DetectFormSQLi probes every non-hidden form input with the SQL corpus and
// checks the response for database error fingerprints.
func DetectFormSQLi(ctx context.Context, prober Prober, page Page, logger *slog.Logger) ([]Finding, int) {
	var findings []Finding
	attempts := 0

	for _, form := range page.Forms {
		if !hasFuzzableInput(form) {
			continue
		}
		for _, target := range form.Inputs {
			if target.Type == "hidden" {
				continue
			}
			for _, payload := range SQLPayloads {
				attempts++
				resp, err := submitForm(ctx, prober, form, target.Name, payload, numericSentinel)
				if err != nil {
					logger.Debug("sqli probe failed", "action", form.Action, "input", target.Name, "err", err)
					continue
				}
				fp := matchSQLError(resp.Body)
				if fp == "" {
					continue
				}
				findings = append(findings, newFinding(
					"SQL Injection",
					CategorySQLInjection,
					SeverityCritical,
					form.Method+" "+form.Action,
					fmt.Sprintf("Input %q with payload %q surfaced a database error (%q).", target.Name, payload, fp),
					"The backing database executes attacker-supplied SQL, exposing or destroying stored data.",
					target.Name,
				))
				break // next input
			}
		}
	}

	return findings, attempts
}

// DetectURLSQLi sends a single quote through each query parameter of the
// page URL and watches for database error fingerprints.
func DetectURLSQLi(ctx context.Context, prober Prober, page Page, logger *slog.Logger) ([]Finding, int) {
	u, err := url.Parse(page.URL)
	if err != nil || len(u.Query()) == 0 {
		return nil, 0
	}

	var findings []Finding
	attempts := 0

	for param := range u.Query() {
		attempts++
		probed, resp, err := probeParam(ctx, prober, u, param, quoteProbe)
		if err != nil {
			logger.Debug("url sqli probe failed", "url", page.URL, "param", param, "err", err)
			continue
		}
		fp := matchSQLError(resp.Body)
		if fp == "" {
			continue
		}
		findings = append(findings, newFinding(
			"SQL Injection (URL)",
			CategorySQLInjection,
			SeverityCritical,
			"GET "+probed,
			fmt.Sprintf("Query parameter %q breaks the SQL statement; response matched fingerprint %q.", param, fp),
			"The backing database executes attacker-supplied SQL, exposing or destroying stored data.",
			param,
		))
	}

	return findings, attempts
}
