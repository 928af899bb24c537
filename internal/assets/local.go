package assets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var imageExtensions = map[string]struct{}{".jpg": {}, ".jpeg": {}, ".png": {}}

// LocalStore reads the downloaded image tree.
type LocalStore struct {
	root string
}

// NewLocalStore returns a store rooted at the images directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Dir returns the directory holding a slug's images.
func (s *LocalStore) Dir(slug string) string {
	return filepath.Join(s.root, slug)
}

// Counts returns the number of image files per source for slug.
func (s *LocalStore) Counts(slug string) (map[Source]int, error) {
	counts := make(map[Source]int, len(Sources))
	for _, src := range Sources {
		entries, err := os.ReadDir(filepath.Join(s.Dir(slug), src.Key))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if _, ok := imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
				counts[src]++
			}
		}
	}
	return counts, nil
}

// ImageCount returns the total number of images for slug across sources.
func (s *LocalStore) ImageCount(slug string) (int, error) {
	counts, err := s.Counts(slug)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// HasImages reports whether any source folder holds at least one image.
func (s *LocalStore) HasImages(slug string) (bool, error) {
	n, err := s.ImageCount(slug)
	return n > 0, err
}
