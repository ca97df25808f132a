package scan

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// formSentinel fills the inputs not under test during XSS fuzzing.
const formSentinel = "test"

// DetectFormXSS probes every non-hidden form input with the XSS corpus and
// checks whether the payload is reflected in the response body. It returns
// the findings plus the number of payload attempts dispatched, counting
// attempts whose request failed.
func DetectFormXSS(ctx context.Context, prober Prober, page Page, logger *slog.Logger) ([]Finding, int) {
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
			for _, payload := range XSSPayloads {
				attempts++
				resp, err := submitForm(ctx, prober, form, target.Name, payload, formSentinel)
				if err != nil {
					logger.Debug("xss probe failed", "action", form.Action, "input", target.Name, "err", err)
					continue
				}
				if !containsFold(resp.Body, payload) {
					continue
				}
				findings = append(findings, newFinding(
					"Reflected XSS",
					CategoryXSS,
					SeverityHigh,
					form.Method+" "+form.Action,
					fmt.Sprintf("Input %q reflects the payload %q unencoded in the response.", target.Name, payload),
					"Scripts injected through this input run in every visitor's browser session.",
					target.Name,
				))
				break // next input
			}
		}
	}

	return findings, attempts
}

// DetectURLXSS replaces each query parameter of the page URL with the
// canonical script payload and checks for an echo.
func DetectURLXSS(ctx context.Context, prober Prober, page Page, logger *slog.Logger) ([]Finding, int) {
	u, err := url.Parse(page.URL)
	if err != nil || len(u.Query()) == 0 {
		return nil, 0
	}

	payload := XSSPayloads[0]
	var findings []Finding
	attempts := 0

	for param := range u.Query() {
		attempts++
		probed, resp, err := probeParam(ctx, prober, u, param, payload)
		if err != nil {
			logger.Debug("url xss probe failed", "url", page.URL, "param", param, "err", err)
			continue
		}
		if !containsFold(resp.Body, payload) {
			continue
		}
		findings = append(findings, newFinding(
			"Reflected XSS (URL)",
			CategoryXSS,
			SeverityHigh,
			"GET "+probed,
			fmt.Sprintf("Query parameter %q reflects the payload unencoded in the response.", param),
			"A crafted link executes attacker script in the browser of anyone who follows it.",
			param,
		))
	}

	return findings, attempts
}

func hasFuzzableInput(form Form) bool {
	for _, in := range form.Inputs {
		if in.Type != "hidden" {
			return true
		}
	}
	return false
}

// submitForm sends the form with target set to payload and every other
// named input set to filler, honoring the form method.
func submitForm(ctx context.Context, prober Prober, form Form, target, payload, filler string) (*ProbeResponse, error) {
	values := url.Values{}
	for _, in := range form.Inputs {
		if in.Name == target {
			values.Set(in.Name, payload)
		} else {
			values.Set(in.Name, filler)
		}
	}

	if form.Method == http.MethodPost {
		return prober.Probe(ctx, http.MethodPost, form.Action, nil, values)
	}
	return prober.Probe(ctx, http.MethodGet, form.Action, values, nil)
}

// probeParam rebuilds the page URL with param swapped for payload, keeping
// the other parameters, and GETs it. It returns the probed URL string.
func probeParam(ctx context.Context, prober Prober, u *url.URL, param, payload string) (string, *ProbeResponse, error) {
	q := u.Query()
	q.Set(param, payload)

	probed := *u
	probed.RawQuery = q.Encode()

	resp, err := prober.Probe(ctx, http.MethodGet, probed.String(), nil, nil)
	return probed.String(), resp, err
}
