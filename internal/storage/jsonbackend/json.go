package jsonbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/FranksOps/securescan/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

// jsonBackend keeps one pretty-printed JSON file per scan in a directory.
// Upserts rewrite the scan's file; reads parse it back. Good enough for
// zero-dependency runs and for inspecting records with standard tools.
type jsonBackend struct {
	mu  sync.Mutex
	dir string
}

// New creates a directory-backed storage.Backend rooted at dir.
func New(dir string) (storage.Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &jsonBackend{dir: dir}, nil
}

func (b *jsonBackend) path(id string) string {
	return filepath.Join(b.dir, id+".json")
}

func (b *jsonBackend) Save(ctx context.Context, s *storage.Scan) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scan: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tmp := b.path(s.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write scan file: %w", err)
	}
	if err := os.Rename(tmp, b.path(s.ID)); err != nil {
		return fmt.Errorf("replace scan file: %w", err)
	}
	return nil
}

func (b *jsonBackend) Get(ctx context.Context, id string) (*storage.Scan, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path(id))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read scan file: %w", err)
	}

	var s storage.Scan
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scan file: %w", err)
	}
	return &s, nil
}

func (b *jsonBackend) List(ctx context.Context, filter storage.Filter) ([]*storage.Scan, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}

	var out []*storage.Scan
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, e.Name()))
		if err != nil {
			continue
		}
		var s storage.Scan
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, &s)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (b *jsonBackend) Close() error {
	return nil
}
