package storage

import (
	"context"
	"errors"
	"time"

	"github.com/FranksOps/securescan/internal/scan"
)

// Scan is the persisted record of one scan, the shape guaranteed to API
// clients and exporters.
type Scan struct {
	ID              string          `json:"id"`
	URL             string          `json:"url"`
	Status          string          `json:"status"`
	Vulnerabilities []scan.Finding  `json:"vulnerabilities"`
	PagesScanned    int             `json:"pagesScanned"`
	FormsFound      int             `json:"formsFound"`
	EndpointsTested int             `json:"endpointsTested"`
	CrawlStats      scan.CrawlStats `json:"crawlStats"`
	CreatedAt       time.Time       `json:"createdAt"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
}

// Filter allows querying for specific scans.
type Filter struct {
	Status string
	Limit  int
	Offset int
}

// ErrNotFound is returned by Get for unknown scan ids.
var ErrNotFound = errors.New("storage: scan not found")

// Backend defines the interface for persisting and querying scan records.
// Save upserts: the coordinator rewrites the record as the scan progresses.
type Backend interface {
	Save(ctx context.Context, s *Scan) error
	Get(ctx context.Context, id string) (*Scan, error)
	List(ctx context.Context, filter Filter) ([]*Scan, error)
	Close() error
}
