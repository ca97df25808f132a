package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"

	"github.com/FranksOps/securescan/internal/scan"
	"github.com/FranksOps/securescan/internal/storage"
)

// Summary aggregates a scan record for rendering.
type Summary struct {
	Scan       *storage.Scan
	BySeverity map[scan.Severity]int
	ByCategory map[scan.Category]int
}

// Summarize computes per-severity and per-category totals.
func Summarize(s *storage.Scan) Summary {
	sum := Summary{
		Scan:       s,
		BySeverity: make(map[scan.Severity]int),
		ByCategory: make(map[scan.Category]int),
	}
	for _, f := range s.Vulnerabilities {
		sum.BySeverity[f.Severity]++
		sum.ByCategory[f.Category]++
	}
	return sum
}

// WriteJSON writes the raw scan record to the provided writer in JSON
// format. This is the export contract: the record shape, verbatim.
func WriteJSON(w io.Writer, s *storage.Scan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode scan: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, s *storage.Scan) error {
	const textTmpl = `SecureScan Report
-----------------
Target:           {{.Scan.URL}}
Status:           {{.Scan.Status}}
Started:          {{.Scan.CreatedAt.Format "2006-01-02 15:04:05"}}
Pages Scanned:    {{.Scan.PagesScanned}}
Forms Found:      {{.Scan.FormsFound}}
Endpoints Tested: {{.Scan.EndpointsTested}}

Findings: {{len .Scan.Vulnerabilities}}
{{- range $sev, $count := .BySeverity}}
  {{$sev}}: {{$count}}
{{- end}}
{{range .Scan.Vulnerabilities}}
[{{.Severity}}] {{.Name}}
  Location: {{.Location}}
  {{.Description}}
{{end}}`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	if err := t.Execute(w, Summarize(s)); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, s *storage.Scan) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>SecureScan Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; width: 100%; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  .sev-Critical { color: #b00020; font-weight: bold; }
  .sev-High { color: #d84315; font-weight: bold; }
  .sev-Medium { color: #f9a825; }
  .sev-Low { color: #2e7d32; }
</style>
</head>
<body>
  <h1>SecureScan Report</h1>
  <p><strong>Target:</strong> {{.Scan.URL}} &mdash; <strong>Status:</strong> {{.Scan.Status}}</p>

  <div class="stat-card">
    <div>Pages Scanned</div>
    <div class="stat-val">{{.Scan.PagesScanned}}</div>
  </div>
  <div class="stat-card">
    <div>Forms Found</div>
    <div class="stat-val">{{.Scan.FormsFound}}</div>
  </div>
  <div class="stat-card">
    <div>Endpoints Tested</div>
    <div class="stat-val">{{.Scan.EndpointsTested}}</div>
  </div>
  <div class="stat-card">
    <div>Findings</div>
    <div class="stat-val" style="color: {{if .Scan.Vulnerabilities}}red{{else}}green{{end}};">{{len .Scan.Vulnerabilities}}</div>
  </div>

  <h3>Findings</h3>
  <table>
    <tr><th>Severity</th><th>Name</th><th>Category</th><th>Location</th><th>Description</th></tr>
    {{- range .Scan.Vulnerabilities}}
    <tr>
      <td class="sev-{{.Severity}}">{{.Severity}}</td>
      <td>{{.Name}}</td>
      <td>{{.Category}}</td>
      <td>{{.Location}}</td>
      <td>{{.Description}}</td>
    </tr>
    {{- else}}
    <tr><td colspan="5">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	// Findings embed raw attack payloads; html/template keeps them inert.
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	if err := t.Execute(w, Summarize(s)); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
