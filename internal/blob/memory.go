package blob

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests. Fetch serves from a seeded
// URL map; uploads are kept in a key map and produce deterministic URLs.
type MemoryStore struct {
	mu      sync.Mutex
	sources map[string][]byte
	objects map[string][]byte
	purged  []string
	cdnBase string
}

// NewMemoryStore creates an empty MemoryStore with the given CDN base.
func NewMemoryStore(cdnBase string) *MemoryStore {
	return &MemoryStore{
		sources: make(map[string][]byte),
		objects: make(map[string][]byte),
		cdnBase: cdnBase,
	}
}

// AddSource seeds the body served for a fetch URL.
func (m *MemoryStore) AddSource(url string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[url] = body
}

// Fetch returns the seeded body for url.
func (m *MemoryStore) Fetch(_ context.Context, url string, limit int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.sources[url]
	if !ok {
		return nil, fmt.Errorf("%w: 404 fetching %s", ErrBadStatus, url)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(body), limit)
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// UploadFile records the file contents under key and returns its URL.
func (m *MemoryStore) UploadFile(_ context.Context, key, path, _, _ string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - test helper
	if err != nil {
		return "", fmt.Errorf("blob: read %s: %w", path, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return fmt.Sprintf("%s/%s", m.cdnBase, key), nil
}

// Purge records the purge request.
func (m *MemoryStore) Purge(_ context.Context, urls []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = append(m.purged, urls...)
	return nil
}

// Object returns an uploaded object's bytes for assertions.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Purged returns the URLs purged so far.
func (m *MemoryStore) Purged() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.purged))
	copy(out, m.purged)
	return out
}
