package registry

import (
	"github.com/MY221B/bird-download/internal/species"
)

// Skipped records a sighting that could not be turned into a slug.
type Skipped struct {
	Record species.Record
	Err    error
}

// Result summarises one reconciliation.
type Result struct {
	// Slugs lists the slug of every accepted record in input order, without
	// duplicates.
	Slugs   []string
	New     []string
	Updated []string
	Skipped []Skipped
}

// Reconcile folds records into reg. Existing entries only have blank fields
// filled; unseen slugs are appended. Records without any usable name are
// skipped and reported.
func Reconcile(reg *Registry, records []species.Record) Result {
	var res Result
	seen := make(map[string]struct{}, len(records))
	for _, raw := range records {
		rec := raw.Trimmed()
		slug, err := species.Slug(rec)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Record: raw, Err: err})
			continue
		}
		if _, dup := seen[slug]; !dup {
			seen[slug] = struct{}{}
			res.Slugs = append(res.Slugs, slug)
		}

		existing, ok := reg.Get(slug)
		if !ok {
			reg.Put(Entry{
				Slug:       slug,
				Chinese:    rec.Chinese,
				English:    rec.English,
				Scientific: rec.Scientific,
				Wikipedia:  WikipediaFor(rec.English),
			})
			res.New = append(res.New, slug)
			continue
		}
		if merged, changed := fillBlanks(existing, rec); changed {
			reg.Put(merged)
			res.Updated = appendOnce(res.Updated, slug)
		}
	}
	return res
}

func fillBlanks(e Entry, rec species.Record) (Entry, bool) {
	changed := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&e.Chinese, rec.Chinese)
	fill(&e.English, rec.English)
	fill(&e.Scientific, rec.Scientific)
	fill(&e.Wikipedia, WikipediaFor(e.English))
	return e, changed
}

func appendOnce(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
