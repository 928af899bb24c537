package converge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MY221B/bird-download/internal/assets"
	"github.com/MY221B/bird-download/internal/logging"
	"github.com/MY221B/bird-download/internal/registry"
	"github.com/MY221B/bird-download/internal/retry"
	"github.com/MY221B/bird-download/internal/scripts"
	"github.com/MY221B/bird-download/internal/services"
	"github.com/MY221B/bird-download/internal/sounds"
)

const (
	DefaultMaxRetries  = 2
	DefaultConcurrency = 2
)

// Inspector reports the current asset state of a slug.
type Inspector interface {
	Inspect(slug string) (assets.State, error)
}

// SoundAcquirer runs the sound pipeline for one slug.
type SoundAcquirer interface {
	Acquire(ctx context.Context, slug string) sounds.Result
}

// Loop converges slugs. Sounds may be nil to skip audio acquisition.
//
// A Loop is shared by every pass of a run: Concurrency bounds collaborator
// work across all concurrent Converge calls, and a slug is converged by at
// most one of them at a time.
type Loop struct {
	Inspector   Inspector
	Downloader  scripts.Downloader
	Uploader    scripts.Uploader
	Sounds      SoundAcquirer
	MaxRetries  int
	Concurrency int
	Backoff     time.Duration
	Logger      *slog.Logger

	initOnce sync.Once
	sem      *semaphore.Weighted
	slugsMu  sync.Mutex
	slugs    map[string]*slugLock
}

type slugLock struct {
	mu   sync.Mutex
	refs int
}

// Outcome is the per-slug record of one pass.
type Outcome struct {
	Slug    string
	Initial State
	Final   State
	// FailedStage is the stage that exhausted its budget when Final is
	// Unrecoverable.
	FailedStage      State
	DownloadAttempts int
	UploadAttempts   int
	Downloaded       bool
	Uploaded         bool
	Sound            *sounds.Result
	Err              error
}

// Result aggregates a pass. Slug lists follow input order.
type Result struct {
	Downloaded        []string
	Uploaded          []string
	StillMissingLocal []string
	StillMissingCloud []string
	// Skipped lists slugs not attempted because the run was cancelled.
	Skipped      []string
	SoundResults []sounds.Result
	Outcomes     []Outcome
}

// Satisfied counts slugs whose images converged.
func (r Result) Satisfied() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Final == Satisfied || o.Final == NeedsSound {
			n++
		}
	}
	return n
}

// Converged reports whether no slug was left unrecoverable or skipped.
func (r Result) Converged() bool {
	return len(r.StillMissingLocal) == 0 && len(r.StillMissingCloud) == 0 && len(r.Skipped) == 0
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger == nil {
		return logging.NewNop()
	}
	return l.Logger
}

func (l *Loop) policy() retry.Policy {
	attempts := l.MaxRetries
	if attempts < 1 {
		attempts = DefaultMaxRetries
	}
	return retry.Policy{Attempts: attempts, Backoff: l.Backoff}
}

func (l *Loop) init() {
	l.initOnce.Do(func() {
		limit := l.Concurrency
		if limit < 1 {
			limit = DefaultConcurrency
		}
		l.sem = semaphore.NewWeighted(int64(limit))
		l.slugs = make(map[string]*slugLock)
	})
}

// lockSlug serialises convergence of one slug across concurrent passes.
func (l *Loop) lockSlug(slug string) func() {
	l.slugsMu.Lock()
	lk := l.slugs[slug]
	if lk == nil {
		lk = &slugLock{}
		l.slugs[slug] = lk
	}
	lk.refs++
	l.slugsMu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.slugsMu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.slugs, slug)
		}
		l.slugsMu.Unlock()
	}
}

// Converge runs one pass over entries. Cancellation stops new slugs from
// starting; slugs already in flight finish their current stage.
func (l *Loop) Converge(ctx context.Context, entries []registry.Entry) Result {
	l.init()
	sem := l.sem
	outcomes := make([]Outcome, len(entries))
	started := make([]bool, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		started[i] = true
		wg.Add(1)
		go func(i int, entry registry.Entry) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = l.convergeSlug(ctx, entry)
		}(i, entry)
	}
	wg.Wait()

	var res Result
	for i, entry := range entries {
		if !started[i] {
			res.Skipped = append(res.Skipped, entry.Slug)
			continue
		}
		o := outcomes[i]
		res.Outcomes = append(res.Outcomes, o)
		if o.Downloaded {
			res.Downloaded = append(res.Downloaded, o.Slug)
		}
		if o.Uploaded {
			res.Uploaded = append(res.Uploaded, o.Slug)
		}
		if o.Final == Unrecoverable {
			switch o.FailedStage {
			case NeedsDownload:
				res.StillMissingLocal = append(res.StillMissingLocal, o.Slug)
			case NeedsUpload:
				res.StillMissingCloud = append(res.StillMissingCloud, o.Slug)
			}
		}
		if o.Sound != nil {
			res.SoundResults = append(res.SoundResults, *o.Sound)
		}
	}
	return res
}

func (l *Loop) inspect(slug string) (State, error) {
	st, err := l.Inspector.Inspect(slug)
	if err != nil {
		return NeedsDownload, err
	}
	return Classify(st), nil
}

func (l *Loop) convergeSlug(ctx context.Context, entry registry.Entry) Outcome {
	defer l.lockSlug(entry.Slug)()
	ctx = services.WithSlug(ctx, entry.Slug)
	logger := logging.WithContext(ctx, l.logger())
	out := Outcome{Slug: entry.Slug}

	state, err := l.inspect(entry.Slug)
	out.Initial = state
	if err != nil {
		out.Err = err
	}
	policy := l.policy()

	if state == NeedsDownload {
		stageCtx := services.WithStage(ctx, "download")
		res := retry.Until(stageCtx, policy,
			func(context.Context) (bool, error) {
				s, err := l.inspect(entry.Slug)
				return s != NeedsDownload, err
			},
			func(ctx context.Context, attempt int) error {
				logger.Info("downloading images", logging.Int("attempt", attempt), logging.Int("max_attempts", policy.Attempts))
				return l.Downloader.Download(ctx, entry)
			})
		out.DownloadAttempts = res.Attempts
		if !res.Satisfied {
			out.Final, out.FailedStage, out.Err = Unrecoverable, NeedsDownload, res.LastErr
			logging.WarnWithContext(logger, "local images still missing", "convergence_download_exhausted",
				logging.Int("attempts", res.Attempts),
				logging.Error(res.LastErr),
				logging.String(logging.FieldErrorHint, "re-run refresh for this location or run the download script for the slug"))
			return out
		}
		out.Downloaded = true
		if state, err = l.inspect(entry.Slug); err != nil {
			out.Err = err
		}
	}

	if state == NeedsUpload {
		stageCtx := services.WithStage(ctx, "upload")
		res := retry.Until(stageCtx, policy,
			func(context.Context) (bool, error) {
				s, err := l.inspect(entry.Slug)
				return s != NeedsDownload && s != NeedsUpload, err
			},
			func(ctx context.Context, attempt int) error {
				logger.Info("uploading images", logging.Int("attempt", attempt), logging.Int("max_attempts", policy.Attempts))
				return l.Uploader.Upload(ctx, entry)
			})
		out.UploadAttempts = res.Attempts
		if !res.Satisfied {
			out.Final, out.FailedStage, out.Err = Unrecoverable, NeedsUpload, res.LastErr
			logging.WarnWithContext(logger, "cloud metadata still missing", "convergence_upload_exhausted",
				logging.Int("attempts", res.Attempts),
				logging.Error(res.LastErr),
				logging.String(logging.FieldErrorHint, "re-run the upload script for the slug"))
			return out
		}
		out.Uploaded = true
		if state, err = l.inspect(entry.Slug); err != nil {
			out.Err = err
		}
	}

	if state == NeedsSound && l.Sounds != nil && ctx.Err() == nil {
		res := l.Sounds.Acquire(ctx, entry.Slug)
		out.Sound = &res
		if res.Success {
			state = Satisfied
		}
	}
	out.Final = state
	logger.Debug("slug converged", logging.String("state", state.String()))
	return out
}
