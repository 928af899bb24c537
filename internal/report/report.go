package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MY221B/bird-download/internal/converge"
	"github.com/MY221B/bird-download/internal/sounds"
)

const (
	StatusUpdated   = "updated"
	StatusFailed    = "failed"
	StatusNoRecords = "no records"
)

// Status renders the status of a location that produced species. Counts
// below minSpecies still update but say so.
func Status(species, minSpecies int) string {
	if minSpecies < 1 {
		minSpecies = 1
	}
	if species < minSpecies {
		return fmt.Sprintf("%s (%d species, below threshold %d)", StatusUpdated, species, minSpecies)
	}
	return StatusUpdated
}

// Location is the outcome of one location's pipeline.
type Location struct {
	ID    string
	Label string
	// Range is the resolved date window, "start..end".
	Range   string
	Status  string
	Species int
	New     int
	Updated int
	Err     error

	Convergence converge.Result
	// Published counts metadata documents copied into the location folder.
	Published  int
	PublishDir string
	// MissingMetadata lists slugs that had no document to publish.
	MissingMetadata []string
}

// Succeeded reports whether the location reached the update stage.
func (l Location) Succeeded() bool {
	return strings.HasPrefix(l.Status, StatusUpdated)
}

// Category names a terminal failure bucket.
type Category string

const (
	CategoryLocation        Category = "location_failed"
	CategoryMissingLocal    Category = "still_missing_local"
	CategoryMissingCloud    Category = "still_missing_cloud"
	CategoryMissingMetadata Category = "missing_metadata"
	CategorySound           Category = "sound_failed"
)

// Categories lists buckets in report order.
var Categories = []Category{
	CategoryLocation,
	CategoryMissingLocal,
	CategoryMissingCloud,
	CategoryMissingMetadata,
	CategorySound,
}

// Failure is one entry in a failure bucket.
type Failure struct {
	Slug     string
	Name     string
	Location string
	Reason   string
}

// Totals are the run-wide counters.
type Totals struct {
	Locations       int
	Updated         int
	Failed          int
	Species         int
	NewSpecies      int
	Downloaded      int
	Uploaded        int
	SoundsSucceeded int
	SoundsFailed    int
}

// Report is the aggregated run outcome.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Locations  []Location
	Global     *converge.Result
	Totals     Totals
	Failures   map[Category][]Failure
	// SoundReasons counts sound failures by reason.
	SoundReasons map[string]int
	Hints        []string
}

// Success reports whether at least one location converged.
func (r Report) Success() bool {
	return r.Totals.Updated > 0
}

// Builder collects outcomes. Names resolves slugs to display names and may
// be nil.
type Builder struct {
	RunID     string
	StartedAt time.Time
	Names     func(slug string) string

	locations []Location
	global    *converge.Result
}

// AddLocation records a location outcome.
func (b *Builder) AddLocation(loc Location) {
	b.locations = append(b.locations, loc)
}

// SetGlobal records the global pass outcome.
func (b *Builder) SetGlobal(res converge.Result) {
	b.global = &res
}

func (b *Builder) name(slug string) string {
	if b.Names != nil {
		if n := b.Names(slug); n != "" {
			return n
		}
	}
	return slug
}

// Build aggregates everything collected so far. A slug that failed in
// several passes appears once per bucket, attributed to the first location
// that reported it; a later global success clears earlier image failures.
func (b *Builder) Build(finished time.Time) Report {
	r := Report{
		RunID:        b.RunID,
		StartedAt:    b.StartedAt,
		FinishedAt:   finished,
		Locations:    append([]Location(nil), b.locations...),
		Global:       b.global,
		Failures:     make(map[Category][]Failure),
		SoundReasons: make(map[string]int),
	}
	seen := make(map[Category]map[string]bool)
	add := func(cat Category, f Failure) {
		if seen[cat] == nil {
			seen[cat] = make(map[string]bool)
		}
		key := f.Slug
		if key == "" {
			key = "location:" + f.Location
		}
		if seen[cat][key] {
			return
		}
		seen[cat][key] = true
		r.Failures[cat] = append(r.Failures[cat], f)
	}
	downloaded := map[string]bool{}
	uploaded := map[string]bool{}
	soundOK := map[string]bool{}
	soundFailed := map[string]sounds.Result{}
	var soundFailedOrder []string

	absorb := func(location string, res converge.Result) {
		for _, s := range res.Downloaded {
			downloaded[s] = true
		}
		for _, s := range res.Uploaded {
			uploaded[s] = true
		}
		for _, s := range res.StillMissingLocal {
			add(CategoryMissingLocal, Failure{Slug: s, Name: b.name(s), Location: location, Reason: "no local images after retries"})
		}
		for _, s := range res.StillMissingCloud {
			add(CategoryMissingCloud, Failure{Slug: s, Name: b.name(s), Location: location, Reason: "no uploaded photos after retries"})
		}
		for _, sr := range res.SoundResults {
			if sr.Success {
				soundOK[sr.Slug] = true
				delete(soundFailed, sr.Slug)
				continue
			}
			if soundOK[sr.Slug] {
				continue
			}
			if _, ok := soundFailed[sr.Slug]; !ok {
				soundFailedOrder = append(soundFailedOrder, sr.Slug)
			}
			soundFailed[sr.Slug] = sr
		}
	}

	for _, loc := range b.locations {
		r.Totals.Locations++
		if loc.Succeeded() {
			r.Totals.Updated++
		} else {
			r.Totals.Failed++
			reason := loc.Status
			if loc.Err != nil {
				reason = loc.Err.Error()
			}
			add(CategoryLocation, Failure{Location: loc.ID, Name: loc.Label, Reason: reason})
		}
		r.Totals.Species += loc.Species
		r.Totals.NewSpecies += loc.New
		absorb(loc.ID, loc.Convergence)
		for _, s := range loc.MissingMetadata {
			add(CategoryMissingMetadata, Failure{Slug: s, Name: b.name(s), Location: loc.ID, Reason: "no cloud metadata to publish"})
		}
	}
	if b.global != nil {
		absorb("global", *b.global)
		r.Failures[CategoryMissingLocal] = dropResolved(r.Failures[CategoryMissingLocal], b.global, filterLocal)
		r.Failures[CategoryMissingCloud] = dropResolved(r.Failures[CategoryMissingCloud], b.global, filterCloud)
	}

	for _, slug := range soundFailedOrder {
		sr, ok := soundFailed[slug]
		if !ok {
			continue
		}
		add(CategorySound, Failure{Slug: slug, Name: nameOr(sr.Name, b.name(slug)), Reason: sr.Reason})
		r.SoundReasons[sr.Reason]++
	}
	r.Totals.Downloaded = len(downloaded)
	r.Totals.Uploaded = len(uploaded)
	r.Totals.SoundsSucceeded = len(soundOK)
	r.Totals.SoundsFailed = len(r.Failures[CategorySound])
	for cat, list := range r.Failures {
		if len(list) == 0 {
			delete(r.Failures, cat)
		}
	}
	r.Hints = Remediation(r)
	return r
}

type stageFilter int

const (
	filterLocal stageFilter = iota
	filterCloud
)

// dropResolved removes failures the global pass fixed.
func dropResolved(list []Failure, global *converge.Result, stage stageFilter) []Failure {
	if len(list) == 0 {
		return list
	}
	still := map[string]bool{}
	var source []string
	if stage == filterLocal {
		source = global.StillMissingLocal
	} else {
		source = global.StillMissingCloud
	}
	for _, s := range source {
		still[s] = true
	}
	covered := map[string]bool{}
	for _, o := range global.Outcomes {
		covered[o.Slug] = true
	}
	out := list[:0]
	for _, f := range list {
		if !covered[f.Slug] || still[f.Slug] {
			out = append(out, f)
		}
	}
	return out
}

func nameOr(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Remediation suggests manual follow-ups for each non-empty failure bucket.
func Remediation(r Report) []string {
	var hints []string
	if list := r.Failures[CategoryLocation]; len(list) > 0 {
		ids := make([]string, 0, len(list))
		for _, f := range list {
			ids = append(ids, f.Location)
		}
		hints = append(hints, fmt.Sprintf("check the location config and credentials, then re-run: birdsync refresh --locations %s", strings.Join(ids, ",")))
	}
	if list := r.Failures[CategoryMissingLocal]; len(list) > 0 {
		hints = append(hints, fmt.Sprintf("images could not be downloaded for %d species; re-run refresh for the affected locations (%s) or add images under the images directory by hand",
			len(list), strings.Join(locationsOf(list), ",")))
	}
	if list := r.Failures[CategoryMissingCloud]; len(list) > 0 {
		hints = append(hints, fmt.Sprintf("uploads failed for %d species; run the upload script for: %s", len(list), strings.Join(slugsOf(list), " ")))
	}
	if list := r.Failures[CategoryMissingMetadata]; len(list) > 0 {
		hints = append(hints, "some species had no cloud metadata to publish; they will be copied on the next run after upload succeeds")
	}
	if list := r.Failures[CategorySound]; len(list) > 0 {
		hints = append(hints, fmt.Sprintf("sounds are missing for %d species; retry with: birdsync sounds %s", len(list), strings.Join(slugsOf(list), " ")))
	}
	return hints
}

func slugsOf(list []Failure) []string {
	out := make([]string, 0, len(list))
	for _, f := range list {
		out = append(out, f.Slug)
	}
	return out
}

func locationsOf(list []Failure) []string {
	set := map[string]bool{}
	for _, f := range list {
		if f.Location != "" && f.Location != "global" {
			set[f.Location] = true
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	if len(out) == 0 {
		out = []string{"all"}
	}
	return out
}
