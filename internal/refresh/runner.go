package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MY221B/bird-download/internal/assets"
	"github.com/MY221B/bird-download/internal/birdreport"
	"github.com/MY221B/bird-download/internal/config"
	"github.com/MY221B/bird-download/internal/converge"
	"github.com/MY221B/bird-download/internal/locations"
	"github.com/MY221B/bird-download/internal/logging"
	"github.com/MY221B/bird-download/internal/metrics"
	"github.com/MY221B/bird-download/internal/notifications"
	"github.com/MY221B/bird-download/internal/planner"
	"github.com/MY221B/bird-download/internal/registry"
	"github.com/MY221B/bird-download/internal/report"
	"github.com/MY221B/bird-download/internal/retry"
	"github.com/MY221B/bird-download/internal/services"
	"github.com/MY221B/bird-download/internal/taxcache"
)

const (
	stageName = "refresh"

	// MaxConcurrency caps parallel locations regardless of configuration.
	MaxConcurrency = config.MaxConcurrency

	workStampLayout    = "20060102_150405"
	publishStampLayout = "060102"
)

// ErrRunLocked is returned when another refresh holds the run lock.
var ErrRunLocked = errors.New("another refresh is already running")

// Options select what a run processes.
type Options struct {
	Locations []locations.Location
	Window    planner.Window
	// MinSpecies overrides the configured threshold when positive.
	MinSpecies int
	// SkipGlobal disables the global pass for this run.
	SkipGlobal bool
}

// Runner executes refresh runs. Taxonomy, Notifier and Metrics are
// optional.
type Runner struct {
	Fetcher  birdreport.Fetcher
	Planner  *planner.Planner
	Registry *registry.Writer
	Loop     *converge.Loop
	Cloud    *assets.CloudStore
	Taxonomy *taxcache.Cache
	Notifier notifications.Service
	Metrics  *metrics.Run

	Paths       config.Paths
	LockPath    string
	MetricsPath string
	MinSpecies  int
	Concurrency int
	GlobalPass  bool
	FetchPolicy retry.Policy
	Now         func() time.Time
	NewRunID    func() string
	Logger      *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) runID() string {
	if r.NewRunID != nil {
		return r.NewRunID()
	}
	return uuid.NewString()
}

func (r *Runner) concurrency() int {
	n := r.Concurrency
	if n < 1 {
		n = converge.DefaultConcurrency
	}
	if n > MaxConcurrency {
		n = MaxConcurrency
	}
	return n
}

// Run processes opts.Locations and returns the aggregated report. The error
// is non-nil only when the run could not start; per-location failures are
// recorded in the report.
func (r *Runner) Run(ctx context.Context, opts Options) (report.Report, error) {
	if len(opts.Locations) == 0 {
		return report.Report{}, services.Wrap(services.ErrConfiguration, stageName, "run", "no locations selected", nil)
	}
	unlock, err := r.acquireLock(ctx)
	if err != nil {
		return report.Report{}, err
	}
	defer unlock()

	started := r.now()
	runID := r.runID()
	logger := r.logger().With(logging.String("run_id", runID))
	logger.Info("refresh started",
		logging.Int("locations", len(opts.Locations)),
		logging.Int("concurrency", r.concurrency()),
	)
	if r.Notifier != nil {
		if err := r.Notifier.NotifyRunStarted(ctx, len(opts.Locations)); err != nil {
			logging.WarnWithContext(logger, "run start notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run continues without start notification"),
			)
		}
	}

	minSpecies := r.MinSpecies
	if opts.MinSpecies > 0 {
		minSpecies = opts.MinSpecies
	}
	job := &job{
		runner:     r,
		logger:     logger,
		window:     opts.Window,
		minSpecies: minSpecies,
		workDir:    filepath.Join(r.Paths.WorkDir, started.Format(workStampLayout)),
		publishDay: started.Format(publishStampLayout),
	}

	outcomes := make([]report.Location, len(opts.Locations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())
	var mu sync.Mutex
	for i, loc := range opts.Locations {
		g.Go(func() error {
			outcome := job.location(gctx, loc)
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	builder := &report.Builder{RunID: runID, StartedAt: started}
	for _, outcome := range outcomes {
		builder.AddLocation(outcome)
	}

	if r.GlobalPass && !opts.SkipGlobal {
		if res, ok := r.globalPass(ctx, logger); ok {
			builder.SetGlobal(res)
		}
	}

	if snapshot, err := r.Registry.Snapshot(); err == nil {
		builder.Names = func(slug string) string {
			if e, ok := snapshot.Get(slug); ok {
				return e.DisplayName()
			}
			return ""
		}
	}
	rep := builder.Build(r.now())
	r.finish(context.WithoutCancel(ctx), logger, rep)
	return rep, nil
}

func (r *Runner) acquireLock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.LockPath == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(r.LockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(r.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrRunLocked, r.LockPath)
	}
	return func() { _ = lock.Unlock() }, nil
}

// globalPass converges every registry slug. Cancellation skips it.
func (r *Runner) globalPass(ctx context.Context, logger *slog.Logger) (converge.Result, bool) {
	if ctx.Err() != nil {
		logging.WarnWithContext(logger, "global pass skipped", "global_pass_skipped",
			logging.Error(ctx.Err()),
			logging.String(logging.FieldImpact, "unvisited slugs stay in their current state"),
		)
		return converge.Result{}, false
	}
	reg, err := r.Registry.Snapshot()
	if err != nil {
		logging.WarnWithContext(logger, "global pass skipped", "registry_unreadable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the registry CSV"),
		)
		return converge.Result{}, false
	}
	entries := reg.Entries()
	logger.Info("global pass started", logging.Int("slugs", len(entries)))
	res := r.Loop.Converge(services.WithStage(ctx, "global"), entries)
	r.refreshBirdInfo(logger, entries)
	logger.Info("global pass finished",
		logging.Int("satisfied", res.Satisfied()),
		logging.Int("still_missing_local", len(res.StillMissingLocal)),
		logging.Int("still_missing_cloud", len(res.StillMissingCloud)),
	)
	return res, true
}

// refreshBirdInfo writes registry names into each metadata document.
func (r *Runner) refreshBirdInfo(logger *slog.Logger, entries []registry.Entry) {
	if r.Cloud == nil {
		return
	}
	for _, e := range entries {
		if !r.Cloud.Exists(e.Slug) {
			continue
		}
		if _, err := r.Cloud.UpdateBirdInfo(e.Slug, e.Chinese, e.English, e.Scientific); err != nil {
			logging.WarnWithContext(logger, "bird info update failed", "bird_info_failed",
				logging.String(logging.FieldSlug, e.Slug),
				logging.Error(err),
			)
		}
	}
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, rep report.Report) {
	logger.Info("refresh finished",
		logging.String("summary", report.Headline(rep)),
		logging.Duration("duration", rep.FinishedAt.Sub(rep.StartedAt)),
		logging.Bool("success", rep.Success()),
	)
	if r.Metrics != nil {
		r.Metrics.ObserveReport(rep)
		if err := r.Metrics.WriteTextfile(r.MetricsPath); err != nil {
			logging.WarnWithContext(logger, "metrics textfile write failed", "metrics_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.textfile_path"),
			)
		}
	}
	if r.Notifier != nil {
		if err := r.Notifier.NotifyRunCompleted(ctx, rep); err != nil {
			logging.WarnWithContext(logger, "run notification failed", "notification_failed",
				logging.Error(err),
			)
		}
	}
}
