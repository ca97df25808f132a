package storage

import (
	"context"
	"testing"
	"time"

	"github.com/FranksOps/securescan/internal/scan"
)

// ensure the record shape compiles with the fields the export contract
// guarantees
func TestScan_Shape(t *testing.T) {
	now := time.Now()
	_ = Scan{
		ID:     "scan-1",
		URL:    "https://example.com",
		Status: "completed",
		Vulnerabilities: []scan.Finding{{
			ID:       "f-1",
			Name:     "Reflected XSS",
			Category: scan.CategoryXSS,
			Severity: scan.SeverityHigh,
			Location: "GET https://example.com/search?q=x",
		}},
		PagesScanned:    3,
		FormsFound:      1,
		EndpointsTested: 42,
		CrawlStats: scan.CrawlStats{
			TotalPages:      3,
			TotalForms:      1,
			TotalLinks:      7,
			VisitedURLs:     3,
			MaxDepthReached: 2,
		},
		CreatedAt:   now,
		CompletedAt: &now,
	}
}

type mockBackend struct{}

func (m *mockBackend) Save(ctx context.Context, s *Scan) error { return nil }
func (m *mockBackend) Get(ctx context.Context, id string) (*Scan, error) {
	return nil, ErrNotFound
}
func (m *mockBackend) List(ctx context.Context, f Filter) ([]*Scan, error) { return nil, nil }
func (m *mockBackend) Close() error                                        { return nil }

func TestBackendInterface(t *testing.T) {
	var b Backend = &mockBackend{}
	_ = b
}
