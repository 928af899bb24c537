package taxcache

import (
	"context"
	"sync"
	"time"
)

// Taxon is one taxonomy row.
type Taxon struct {
	SpeciesCode string `json:"speciesCode"`
	SciName     string `json:"sciName"`
	ComName     string `json:"comName"`
}

// MonthKey returns the cache key for t.
func MonthKey(t time.Time) string {
	return t.Format("200601")
}

// Storage persists taxonomy snapshots by key.
type Storage interface {
	Get(ctx context.Context, key string) ([]Taxon, bool, error)
	Put(ctx context.Context, key string, taxa []Taxon) error
}

// MemoryStorage keeps snapshots in process memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]Taxon
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]Taxon)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]Taxon, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	taxa, ok := m.data[key]
	return taxa, ok, nil
}

func (m *MemoryStorage) Put(_ context.Context, key string, taxa []Taxon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]Taxon(nil), taxa...)
	return nil
}
