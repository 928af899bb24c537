package taxcache_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MY221B/bird-download/internal/taxcache"
)

var sampleTaxa = []taxcache.Taxon{
	{SpeciesCode: "lighth1", SciName: "Pycnonotus sinensis", ComName: "Light-vented Bulbul"},
	{SpeciesCode: "eurtre1", SciName: "Passer montanus", ComName: "Eurasian Tree Sparrow"},
	{SpeciesCode: "grtkin1", SciName: "Parus minor", ComName: "Japanese Tit"},
}

type countingFetcher struct {
	calls int
	taxa  []taxcache.Taxon
	err   error
}

func (f *countingFetcher) fetch(context.Context) ([]taxcache.Taxon, error) {
	f.calls++
	return f.taxa, f.err
}

func TestCacheFetchesOncePerMonth(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	fetcher := &countingFetcher{taxa: sampleTaxa}
	storage := taxcache.NewMemoryStorage()
	cache := taxcache.New(storage, fetcher.fetch, taxcache.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	taxon, ok, err := cache.ByScientificName(ctx, "passer MONTANUS")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "eurtre1", taxon.SpeciesCode)

	_, _, err = cache.ByScientificName(ctx, "Parus minor")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)

	// A fresh cache in the same month reads from storage.
	again := taxcache.New(storage, fetcher.fetch, taxcache.WithClock(func() time.Time { return now }))
	_, err = again.Taxonomy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)

	now = now.AddDate(0, 1, 0)
	_, err = cache.Taxonomy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestSearchMatchesSubstring(t *testing.T) {
	fetcher := &countingFetcher{taxa: sampleTaxa}
	cache := taxcache.New(nil, fetcher.fetch)

	taxon, ok, err := cache.Search(context.Background(), "pycnonotus")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lighth1", taxon.SpeciesCode)

	taxon, ok, err = cache.Search(context.Background(), "tree sparrow")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "eurtre1", taxon.SpeciesCode)

	_, ok, err = cache.Search(context.Background(), "Corvus")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	cache := taxcache.New(nil, (&countingFetcher{err: boom}).fetch)
	_, _, err := cache.ByScientificName(context.Background(), "Parus minor")
	assert.ErrorIs(t, err, boom)
}

func TestSQLiteStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "taxonomy.db")
	store, err := taxcache.OpenSQLite(path)
	require.NoError(t, err)

	ctx := context.Background()
	_, ok, err := store.Get(ctx, "202403")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "202403", sampleTaxa))
	require.NoError(t, store.Close())

	reopened, err := taxcache.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, ok, err := reopened.Get(ctx, "202403")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleTaxa, got)

	require.NoError(t, reopened.Put(ctx, "202404", sampleTaxa[:1]))
	_, ok, err = reopened.Get(ctx, "202403")
	require.NoError(t, err)
	assert.False(t, ok, "older months are dropped")
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "202401", taxcache.MonthKey(time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)))
}
