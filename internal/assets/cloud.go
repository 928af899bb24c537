package assets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/MY221B/bird-download/internal/fileutil"
	"github.com/MY221B/bird-download/internal/services"
)

const (
	stageName      = "assets"
	metadataSuffix = "_cloudinary_urls.json"
)

// CloudStore reads and writes the per-slug cloud metadata documents.
// Read-modify-write helpers are serialised per slug.
type CloudStore struct {
	dir   string
	locks sync.Map
}

// NewCloudStore returns a store for the metadata directory.
func NewCloudStore(dir string) *CloudStore {
	return &CloudStore{dir: dir}
}

// Path returns the metadata document path for slug.
func (s *CloudStore) Path(slug string) string {
	return filepath.Join(s.dir, slug+metadataSuffix)
}

// Exists reports whether a metadata document exists for slug.
func (s *CloudStore) Exists(slug string) bool {
	info, err := os.Stat(s.Path(slug))
	return err == nil && !info.IsDir()
}

// Load reads the metadata for slug. A missing document is reported as
// services.ErrNotFound.
func (s *CloudStore) Load(slug string) (*Metadata, error) {
	data, err := os.ReadFile(s.Path(slug))
	if errors.Is(err, os.ErrNotExist) {
		return nil, services.Wrap(services.ErrNotFound, stageName, "load metadata", slug, nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "load metadata", slug, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "decode metadata", slug, err)
	}
	return &meta, nil
}

// PhotoCount returns the number of uploaded photos for slug. Missing or
// unreadable documents count as zero.
func (s *CloudStore) PhotoCount(slug string) int {
	meta, err := s.Load(slug)
	if err != nil {
		return 0
	}
	return meta.PhotoCount()
}

// Save writes meta for slug through a temporary file and rename.
func (s *CloudStore) Save(slug string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata %s: %w", slug, err)
	}
	return fileutil.WriteFileAtomic(s.Path(slug), append(data, '\n'))
}

// Modify loads, mutates and saves the metadata for slug under the slug's
// lock. fn reports whether anything changed; unchanged documents are not
// rewritten.
func (s *CloudStore) Modify(slug string, fn func(*Metadata) (bool, error)) error {
	mu := s.lockFor(slug)
	mu.Lock()
	defer mu.Unlock()

	meta, err := s.Load(slug)
	if err != nil {
		return err
	}
	changed, err := fn(meta)
	if err != nil || !changed {
		return err
	}
	return s.Save(slug, meta)
}

// UpdateBirdInfo writes registry names into the slug's bird_info. It returns
// false without error when no document exists.
func (s *CloudStore) UpdateBirdInfo(slug, chinese, english, scientific string) (bool, error) {
	if !s.Exists(slug) {
		return false, nil
	}
	updated := false
	err := s.Modify(slug, func(m *Metadata) (bool, error) {
		updated = m.SetNames(slug, chinese, english, scientific)
		return updated, nil
	})
	return updated, err
}

// UpsertSound records sound in the slug's metadata.
func (s *CloudStore) UpsertSound(slug string, sound Sound) error {
	return s.Modify(slug, func(m *Metadata) (bool, error) {
		m.UpsertSound(sound)
		return true, nil
	})
}

// Slugs lists every slug that has a metadata document, sorted.
func (s *CloudStore) Slugs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var slugs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, metadataSuffix) {
			continue
		}
		slugs = append(slugs, strings.TrimSuffix(name, metadataSuffix))
	}
	sort.Strings(slugs)
	return slugs, nil
}

func (s *CloudStore) lockFor(slug string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(slug, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
