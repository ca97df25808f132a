package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/securescan/internal/scan"
	"github.com/FranksOps/securescan/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	status TEXT NOT NULL,
	vulnerabilities JSONB NOT NULL,
	pages_scanned INTEGER NOT NULL,
	forms_found INTEGER NOT NULL,
	endpoints_tested INTEGER NOT NULL,
	crawl_stats JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, s *storage.Scan) error {
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
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		vulnerabilities = EXCLUDED.vulnerabilities,
		pages_scanned = EXCLUDED.pages_scanned,
		forms_found = EXCLUDED.forms_found,
		endpoints_tested = EXCLUDED.endpoints_tested,
		crawl_stats = EXCLUDED.crawl_stats,
		completed_at = EXCLUDED.completed_at
	`

	_, err = b.pool.Exec(ctx, query,
		s.ID,
		s.URL,
		s.Status,
		vulns,
		s.PagesScanned,
		s.FormsFound,
		s.EndpointsTested,
		stats,
		s.CreatedAt,
		s.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save scan: %w", err)
	}
	return nil
}

func (b *postgresBackend) Get(ctx context.Context, id string) (*storage.Scan, error) {
	row := b.pool.QueryRow(ctx,
		`SELECT id, url, status, vulnerabilities, pages_scanned, forms_found, endpoints_tested, crawl_stats, created_at, completed_at
		FROM scans WHERE id = $1`, id)
	s, err := scanRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return s, err
}

func (b *postgresBackend) List(ctx context.Context, filter storage.Filter) ([]*storage.Scan, error) {
	query := `SELECT id, url, status, vulnerabilities, pages_scanned, forms_found, endpoints_tested, crawl_stats, created_at, completed_at FROM scans`
	args := []any{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := b.pool.Query(ctx, query, args...)
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

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*storage.Scan, error) {
	var (
		s     storage.Scan
		vulns []byte
		stats []byte
	)
	err := row.Scan(
		&s.ID, &s.URL, &s.Status, &vulns,
		&s.PagesScanned, &s.FormsFound, &s.EndpointsTested,
		&stats, &s.CreatedAt, &s.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(vulns, &s.Vulnerabilities); err != nil {
		return nil, fmt.Errorf("unmarshal vulnerabilities: %w", err)
	}
	if s.Vulnerabilities == nil {
		s.Vulnerabilities = []scan.Finding{}
	}
	if err := json.Unmarshal(stats, &s.CrawlStats); err != nil {
		return nil, fmt.Errorf("unmarshal crawl stats: %w", err)
	}
	return &s, nil
}
