package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MY221B/bird-download/internal/birdreport"
	"github.com/MY221B/bird-download/internal/locations"
	"github.com/MY221B/bird-download/internal/logging"
	"github.com/MY221B/bird-download/internal/planner"
	"github.com/MY221B/bird-download/internal/registry"
	"github.com/MY221B/bird-download/internal/report"
	"github.com/MY221B/bird-download/internal/retry"
	"github.com/MY221B/bird-download/internal/services"
	"github.com/MY221B/bird-download/internal/species"
)

const defaultFetchAttempts = 3

// job carries the per-run state shared by location pipelines.
type job struct {
	runner     *Runner
	logger     *slog.Logger
	window     planner.Window
	minSpecies int
	workDir    string
	publishDay string
}

// location runs the full pipeline for one location. It never panics the run:
// every failure is captured in the returned outcome.
func (j *job) location(ctx context.Context, loc locations.Location) report.Location {
	ctx = services.WithLocation(ctx, loc.ID)
	logger := j.logger.With(logging.String(logging.FieldLocation, loc.ID))
	out := report.Location{ID: loc.ID, Label: loc.Label()}

	fail := func(stage string, err error) report.Location {
		out.Status = report.StatusFailed
		out.Err = err
		logging.WarnWithContext(logger, "location failed", "location_failed",
			logging.String(logging.FieldStage, stage),
			logging.Error(err),
			logging.String(logging.FieldImpact, "location skipped for this run"),
			logging.String(logging.FieldErrorHint, hintFor(err)),
		)
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail("plan", err)
	}
	plan, err := j.runner.Planner.Plan(loc, j.window)
	if err != nil {
		return fail("plan", err)
	}
	out.Range = plan.Range.String()
	logger.Info("location planned",
		logging.String("range", out.Range),
		logging.Int("groups", len(plan.Groups)),
		logging.Int("queries", plan.Size()),
	)

	records, err := j.fetch(services.WithStage(ctx, "fetch"), logger, plan)
	if err != nil {
		return fail("fetch", err)
	}
	out.Species = len(records)
	if len(records) == 0 {
		out.Status = report.StatusNoRecords
		out.Err = services.Wrap(services.ErrNotFound, stageName, "merge", "no species returned for "+out.Range, nil)
		logging.WarnWithContext(logger, "location returned no species", "no_records",
			logging.String("range", out.Range),
			logging.String(logging.FieldErrorHint, "widen the date range or check the location fields"),
		)
		return out
	}
	out.Status = report.Status(len(records), j.minSpecies)
	if len(records) < j.minSpecies {
		logging.WarnWithContext(logger, "species count below threshold", "below_min_species",
			logging.Int("species", len(records)),
			logging.Int("min_species", j.minSpecies),
		)
	}

	res, err := j.runner.Registry.Reconcile(ctx, records)
	if err != nil {
		return fail("registry", err)
	}
	out.New, out.Updated = len(res.New), len(res.Updated)
	for _, s := range res.Skipped {
		logging.WarnWithContext(logger, "record skipped", "record_skipped",
			logging.String("record", s.Record.Line()),
			logging.Error(s.Err),
		)
	}
	if enriched := j.enrich(ctx, logger, res.Slugs); enriched > 0 {
		logger.Info("english names filled from taxonomy", logging.Int("count", enriched))
	}

	snapshot, err := j.runner.Registry.Snapshot()
	if err != nil {
		return fail("registry", err)
	}
	entries := entriesFor(snapshot, res.Slugs)
	if err := j.writeWork(loc, records, entries); err != nil {
		logging.WarnWithContext(logger, "work snapshot failed", "work_snapshot_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "per-run species list not written"),
		)
	}
	logger.Info("registry reconciled",
		logging.Int("species", len(records)),
		logging.Int("new", out.New),
		logging.Int("updated", out.Updated),
	)

	out.Convergence = j.runner.Loop.Converge(services.WithStage(ctx, "converge"), entries)
	j.runner.refreshBirdInfo(logger, entries)

	published, missing, dir, err := j.publish(loc, res.Slugs)
	out.Published, out.MissingMetadata, out.PublishDir = published, missing, dir
	if err != nil {
		logging.WarnWithContext(logger, "publishing failed", "publish_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "location list incomplete"),
		)
	}
	logger.Info("location finished",
		logging.String("status", out.Status),
		logging.Int("satisfied", out.Convergence.Satisfied()),
		logging.Int("published", published),
		logging.Int("missing_metadata", len(missing)),
	)
	return out
}

// fetch runs every query group and merges the results. Tolerant plans skip
// failed groups as long as one succeeds; otherwise the first failure fails
// the location.
func (j *job) fetch(ctx context.Context, logger *slog.Logger, plan planner.Plan) ([]species.Record, error) {
	var merger species.Merger
	var failures []error
	succeeded := 0
	for _, group := range plan.Groups {
		records, err := j.fetchGroup(ctx, group)
		if err != nil {
			if ctx.Err() != nil || !plan.Tolerant {
				return nil, err
			}
			failures = append(failures, fmt.Errorf("%s: %w", group.Label, err))
			logging.WarnWithContext(logger, "query group failed", "group_failed",
				logging.String("group", group.Label),
				logging.Error(err),
				logging.String(logging.FieldImpact, "results from this group are missing"),
			)
			continue
		}
		succeeded++
		added := merger.Add(records)
		logger.Debug("query group fetched",
			logging.String("group", group.Label),
			logging.Int("records", len(records)),
			logging.Int("new", added),
		)
	}
	if succeeded == 0 && len(failures) > 0 {
		return nil, errors.Join(failures...)
	}
	return merger.Records(), nil
}

func (j *job) fetchGroup(ctx context.Context, group planner.Group) ([]species.Record, error) {
	var out []species.Record
	for _, payload := range group.Payloads {
		records, err := j.fetchOne(ctx, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// fetchOne retries network errors up to the fetch policy and protocol
// errors once.
func (j *job) fetchOne(ctx context.Context, payload birdreport.Payload) ([]species.Record, error) {
	policy := j.runner.FetchPolicy
	if policy.Attempts < 1 {
		policy.Attempts = defaultFetchAttempts
	}
	var records []species.Record
	current := 0
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		current = attempt
		started := time.Now()
		got, err := j.runner.Fetcher.Fetch(ctx, payload)
		if j.runner.Metrics != nil {
			j.runner.Metrics.ObserveFetch(err, time.Since(started))
		}
		if err != nil {
			return err
		}
		records = got
		return nil
	}, func(err error) bool {
		if errors.Is(err, services.ErrProtocol) {
			return current < 2
		}
		return services.IsRetryable(err)
	})
	return records, err
}

// enrich fills blank english names from the cached taxonomy. Slugs are never
// changed.
func (j *job) enrich(ctx context.Context, logger *slog.Logger, slugs []string) int {
	cache := j.runner.Taxonomy
	if cache == nil || len(slugs) == 0 {
		return 0
	}
	reg, err := j.runner.Registry.Snapshot()
	if err != nil || !needsEnglish(reg, slugs) {
		return 0
	}
	// Warm the cache outside the registry lock.
	if _, err := cache.Taxonomy(ctx); err != nil {
		logging.WarnWithContext(logger, "taxonomy unavailable", "taxonomy_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "english names stay blank"),
		)
		return 0
	}
	filled := 0
	err = j.runner.Registry.Update(ctx, func(reg *registry.Registry) error {
		for _, slug := range slugs {
			e, ok := reg.Get(slug)
			if !ok || e.English != "" || e.Scientific == "" {
				continue
			}
			taxon, found, err := cache.ByScientificName(ctx, e.Scientific)
			if err != nil {
				return err
			}
			if !found || taxon.ComName == "" {
				continue
			}
			e.English = taxon.ComName
			if e.Wikipedia == "" {
				e.Wikipedia = registry.WikipediaFor(e.English)
			}
			reg.Put(e)
			filled++
		}
		if filled == 0 {
			return errNothingToWrite
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNothingToWrite) {
		logging.WarnWithContext(logger, "taxonomy enrichment failed", "taxonomy_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "english names stay blank"),
		)
		return 0
	}
	return filled
}

var errNothingToWrite = errors.New("nothing to write")

func needsEnglish(reg *registry.Registry, slugs []string) bool {
	for _, slug := range slugs {
		if e, ok := reg.Get(slug); ok && e.English == "" && e.Scientific != "" {
			return true
		}
	}
	return false
}

func entriesFor(reg *registry.Registry, slugs []string) []registry.Entry {
	entries := make([]registry.Entry, 0, len(slugs))
	for _, slug := range slugs {
		if e, ok := reg.Get(slug); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrAuth):
		return "birdreport rejected the request; the published key or headers may have changed"
	case errors.Is(err, services.ErrNetwork):
		return "birdreport unreachable; retry later"
	case errors.Is(err, services.ErrProtocol):
		return "unexpected birdreport response; inspect with birdsync fetch"
	case errors.Is(err, services.ErrConfiguration):
		return "check the location entry in the location config"
	default:
		return "see logs for details"
	}
}
