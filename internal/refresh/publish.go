package refresh

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/MY221B/bird-download/internal/fileutil"
	"github.com/MY221B/bird-download/internal/locations"
	"github.com/MY221B/bird-download/internal/registry"
	"github.com/MY221B/bird-download/internal/species"
)

const (
	workListFile = "birds.txt"
	workCSVFile  = "birds.csv"
)

// writeWork stores the merged species list and the location's registry rows
// under the run's work directory.
func (j *job) writeWork(loc locations.Location, records []species.Record, entries []registry.Entry) error {
	if j.runner.Paths.WorkDir == "" {
		return nil
	}
	dir := filepath.Join(j.workDir, dirName(loc.ID))
	err := fileutil.WriteAtomic(filepath.Join(dir, workListFile), func(w io.Writer) error {
		for _, rec := range records {
			if _, err := fmt.Fprintln(w, rec.Line()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", workListFile, err)
	}
	if err := registry.WriteSnapshot(filepath.Join(dir, workCSVFile), entries); err != nil {
		return fmt.Errorf("write %s: %w", workCSVFile, err)
	}
	return nil
}

// publish copies each slug's metadata document into
// <location_birds>/<city>/<location>/<yymmdd>/. Slugs without a document are
// returned as missing.
func (j *job) publish(loc locations.Location, slugs []string) (int, []string, string, error) {
	root := j.runner.Paths.LocationBirdsDir
	cloud := j.runner.Cloud
	if root == "" || cloud == nil {
		return 0, nil, "", nil
	}
	dir := filepath.Join(root, dirName(locations.CityFor(loc)), dirName(loc.ID), j.publishDay)
	var (
		published int
		missing   []string
		errs      []error
	)
	for _, slug := range slugs {
		if !cloud.Exists(slug) {
			missing = append(missing, slug)
			continue
		}
		if err := fileutil.CopyFileVerified(cloud.Path(slug), filepath.Join(dir, slug+".json")); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", slug, err))
			missing = append(missing, slug)
			continue
		}
		published++
	}
	return published, missing, dir, errors.Join(errs...)
}

// dirName keeps identifiers usable as a single path element.
func dirName(value string) string {
	value = strings.TrimSpace(value)
	value = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(value)
	if value == "" {
		return "_"
	}
	return value
}
