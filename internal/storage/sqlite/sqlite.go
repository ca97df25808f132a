package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/securescan/internal/scan"
	"github.com/FranksOps/securescan/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	status TEXT NOT NULL,
	vulnerabilities TEXT NOT NULL,
	pages_scanned INTEGER NOT NULL,
	forms_found INTEGER NOT NULL,
	endpoints_tested INTEGER NOT NULL,
	crawl_stats TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, s *storage.Scan) error {
	vulns, err := json.Marshal(s.Vulnerabilities)
	if err != nil {
		return fmt.Errorf("marshal vulnerabilities: %w", err)
	}
	stats, err := json.Marshal(s.CrawlStats)
	if err != nil {
		return fmt.Errorf("marshal crawl stats: %w", err)
	}

	query := `
	INSERT INTO scans (
		id, url, status, vulnerabilities, pages_scanned, forms_found, endpoints_tested, crawl_stats, created_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		vulnerabilities = excluded.vulnerabilities,
		pages_scanned = excluded.pages_scanned,
		forms_found = excluded.forms_found,
		endpoints_tested = excluded.endpoints_tested,
		crawl_stats = excluded.crawl_stats,
		completed_at = excluded.completed_at
	`

	var completed any
	if s.CompletedAt != nil {
		completed = *s.CompletedAt
	}

	_, err = b.db.ExecContext(ctx, query,
		s.ID,
		s.URL,
		s.Status,
		string(vulns),
		s.PagesScanned,
		s.FormsFound,
		s.EndpointsTested,
		string(stats),
		s.CreatedAt,
		completed,
	)
	if err != nil {
		return fmt.Errorf("save scan: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Get(ctx context.Context, id string) (*storage.Scan, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, url, status, vulnerabilities, pages_scanned, forms_found, endpoints_tested, crawl_stats, created_at, completed_at
		FROM scans WHERE id = ?`, id)
	s, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return s, err
}

func (b *sqliteBackend) List(ctx context.Context, filter storage.Filter) ([]*storage.Scan, error) {
	query := `SELECT id, url, status, vulnerabilities, pages_scanned, forms_found, endpoints_tested, crawl_stats, created_at, completed_at FROM scans WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []*storage.Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*storage.Scan, error) {
	var (
		s         storage.Scan
		vulns     string
		stats     string
		completed sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.URL, &s.Status, &vulns,
		&s.PagesScanned, &s.FormsFound, &s.EndpointsTested,
		&stats, &s.CreatedAt, &completed,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(vulns), &s.Vulnerabilities); err != nil {
		return nil, fmt.Errorf("unmarshal vulnerabilities: %w", err)
	}
	if s.Vulnerabilities == nil {
		s.Vulnerabilities = []scan.Finding{}
	}
	if err := json.Unmarshal([]byte(stats), &s.CrawlStats); err != nil {
		return nil, fmt.Errorf("unmarshal crawl stats: %w", err)
	}
	if completed.Valid {
		t := completed.Time.UTC()
		s.CompletedAt = &t
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}
