package taxcache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MY221B/bird-download/internal/logging"
)

// FetchFunc downloads the full taxonomy.
type FetchFunc func(ctx context.Context) ([]Taxon, error)

// Cache serves taxonomy lookups from a monthly snapshot.
type Cache struct {
	storage Storage
	fetch   FetchFunc
	now     func() time.Time
	logger  *slog.Logger

	mu    sync.Mutex
	key   string
	taxa  []Taxon
	bySci map[string]Taxon
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the month source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a cache backed by storage that refreshes through fetch.
func New(storage Storage, fetch FetchFunc, opts ...Option) *Cache {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	c := &Cache{storage: storage, fetch: fetch, now: time.Now, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "taxcache")
	return c
}

// Taxonomy returns the snapshot for the current month, loading it from
// storage or fetching it when absent.
func (c *Cache) Taxonomy(ctx context.Context) ([]Taxon, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := MonthKey(c.now())
	if c.key == key && c.taxa != nil {
		return c.taxa, nil
	}

	taxa, ok, err := c.storage.Get(ctx, key)
	if err != nil {
		c.logger.Warn("taxonomy cache read failed",
			logging.String(logging.FieldEventType, "taxcache_read_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the cache database if this persists"),
			logging.String(logging.FieldImpact, "taxonomy will be fetched again"))
	}
	if !ok || err != nil {
		if c.fetch == nil {
			return nil, errors.New("taxonomy not cached and no fetcher configured")
		}
		taxa, err = c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.storage.Put(ctx, key, taxa); err != nil {
			c.logger.Warn("taxonomy cache write failed",
				logging.String(logging.FieldEventType, "taxcache_write_failed"),
				logging.Error(err),
				logging.String(logging.FieldImpact, "taxonomy will be fetched again next run"))
		}
		c.logger.Info("taxonomy refreshed", logging.String("month", key), logging.Int("taxa", len(taxa)))
	}

	c.key = key
	c.taxa = taxa
	c.bySci = make(map[string]Taxon, len(taxa))
	for _, t := range taxa {
		sci := strings.ToLower(strings.TrimSpace(t.SciName))
		if _, exists := c.bySci[sci]; !exists {
			c.bySci[sci] = t
		}
	}
	return taxa, nil
}

// ByScientificName finds the taxon whose scientific name matches exactly,
// ignoring case.
func (c *Cache) ByScientificName(ctx context.Context, sci string) (Taxon, bool, error) {
	if _, err := c.Taxonomy(ctx); err != nil {
		return Taxon{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.bySci[strings.ToLower(strings.TrimSpace(sci))]
	return t, ok, nil
}

// Search finds the first taxon whose scientific or common name contains
// query, ignoring case.
func (c *Cache) Search(ctx context.Context, query string) (Taxon, bool, error) {
	taxa, err := c.Taxonomy(ctx)
	if err != nil {
		return Taxon{}, false, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return Taxon{}, false, nil
	}
	for _, t := range taxa {
		if strings.Contains(strings.ToLower(t.SciName), query) || strings.Contains(strings.ToLower(t.ComName), query) {
			return t, true, nil
		}
	}
	return Taxon{}, false, nil
}
