package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/securescan/internal/scan"
	"github.com/FranksOps/securescan/internal/storage"
)

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()
	b, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func sampleScan(id string) *storage.Scan {
	return &storage.Scan{
		ID:     id,
		URL:    "https://example.com",
		Status: "pending",
		Vulnerabilities: []scan.Finding{{
			ID:       "f-1",
			Name:     "SQL Injection",
			Category: scan.CategorySQLInjection,
			Severity: scan.SeverityCritical,
			Location: "GET https://example.com/item?id='",
		}},
		PagesScanned:    2,
		FormsFound:      1,
		EndpointsTested: 15,
		CrawlStats:      scan.CrawlStats{TotalPages: 2, MaxDepthReached: 1},
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
}

func TestSQLite_SaveGetRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	in := sampleScan("scan-1")
	if err := b.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := b.Get(ctx, "scan-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.URL != in.URL || out.Status != in.Status || out.PagesScanned != in.PagesScanned {
		t.Errorf("roundtrip mismatch: %+v", out)
	}
	if len(out.Vulnerabilities) != 1 || out.Vulnerabilities[0].Name != "SQL Injection" {
		t.Errorf("vulnerabilities lost: %+v", out.Vulnerabilities)
	}
	if out.CrawlStats.TotalPages != 2 {
		t.Errorf("crawl stats lost: %+v", out.CrawlStats)
	}
	if out.CompletedAt != nil {
		t.Error("CompletedAt should stay nil until the scan finishes")
	}
}

func TestSQLite_SaveUpserts(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	s := sampleScan("scan-1")
	if err := b.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	s.Status = "completed"
	s.PagesScanned = 5
	s.CompletedAt = &now
	if err := b.Save(ctx, s); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	out, err := b.Get(ctx, "scan-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.Status != "completed" || out.PagesScanned != 5 {
		t.Errorf("update lost: %+v", out)
	}
	if out.CompletedAt == nil || !out.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", out.CompletedAt, now)
	}

	all, err := b.List(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("upsert created %d rows, want 1", len(all))
	}
}

func TestSQLite_GetUnknown(t *testing.T) {
	b := newTestBackend(t)
	if _, err := b.Get(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLite_ListFilters(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for i, status := range []string{"completed", "failed", "completed"} {
		s := sampleScan(string(rune('a' + i)))
		s.Status = status
		s.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if err := b.Save(ctx, s); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	completed, err := b.List(ctx, storage.Filter{Status: "completed"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(completed) != 2 {
		t.Errorf("completed = %d, want 2", len(completed))
	}

	limited, err := b.List(ctx, storage.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limited = %d, want 1", len(limited))
	}
	// Most recent first
	if limited[0].ID != "c" {
		t.Errorf("first = %q, want the newest scan", limited[0].ID)
	}
}
