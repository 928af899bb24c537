package refresh

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MY221B/bird-download/internal/assets"
	"github.com/MY221B/bird-download/internal/birdreport"
	"github.com/MY221B/bird-download/internal/cloudinary"
	"github.com/MY221B/bird-download/internal/config"
	"github.com/MY221B/bird-download/internal/converge"
	"github.com/MY221B/bird-download/internal/logging"
	"github.com/MY221B/bird-download/internal/metrics"
	"github.com/MY221B/bird-download/internal/notifications"
	"github.com/MY221B/bird-download/internal/planner"
	"github.com/MY221B/bird-download/internal/ratelimit"
	"github.com/MY221B/bird-download/internal/registry"
	"github.com/MY221B/bird-download/internal/retry"
	"github.com/MY221B/bird-download/internal/scripts"
	"github.com/MY221B/bird-download/internal/sounds"
	"github.com/MY221B/bird-download/internal/taxcache"
)

// Stack holds the wired components built from a config.
type Stack struct {
	Runner   *Runner
	Fetcher  *birdreport.Client
	Sounds   *sounds.Pipeline
	Taxonomy *taxcache.Cache

	closers []func() error
}

// Close releases resources opened by Build.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// Build wires every component of a refresh from cfg.
func Build(cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	stack := &Stack{}

	fetcher, err := birdreport.New(cfg.BirdReport.Endpoint,
		birdreport.WithHTTPClient(&http.Client{Timeout: seconds(cfg.BirdReport.TimeoutSeconds, 30)}),
		birdreport.WithLimiter(ratelimit.New(cfg.BirdReport.RequestsPerSecond, 1)),
		birdreport.WithUserAgent(cfg.BirdReport.UserAgent),
		birdreport.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("birdreport client: %w", err)
	}
	stack.Fetcher = fetcher

	runner, err := scripts.New(scripts.Options{
		ProjectRoot:     cfg.Paths.ProjectRoot,
		ScratchDir:      cfg.Paths.WorkDir,
		DownloadCommand: cfg.Collaborators.DownloadCommand,
		UploadCommand:   cfg.Collaborators.UploadCommand,
		Timeout:         seconds(cfg.Collaborators.TimeoutSeconds, 0),
	}, scripts.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("collaborators: %w", err)
	}

	cloud := assets.NewCloudStore(cfg.Paths.CloudMetadataDir)
	loop := &converge.Loop{
		Inspector:   assets.Inspector{Local: assets.NewLocalStore(cfg.Paths.ImagesDir), Cloud: cloud},
		Downloader:  runner,
		Uploader:    runner,
		MaxRetries:  cfg.Refresh.MaxRetries,
		Concurrency: cfg.Refresh.Concurrency,
		Backoff:     2 * time.Second,
		Logger:      logger,
	}

	if cfg.Sounds.Enabled {
		if err := stack.buildSounds(cfg, logger, cloud); err != nil {
			_ = stack.Close()
			return nil, err
		}
		loop.Sounds = stack.Sounds
	}

	stack.Runner = &Runner{
		Fetcher:     fetcher,
		Planner:     planner.New(cfg.Refresh.DefaultDays),
		Registry:    registry.NewWriter(cfg.Paths.RegistryFile),
		Loop:        loop,
		Cloud:       cloud,
		Taxonomy:    stack.Taxonomy,
		Notifier:    notifications.NewService(cfg),
		Metrics:     metrics.New(),
		Paths:       cfg.Paths,
		LockPath:    cfg.RunLockPath(),
		MetricsPath: cfg.Metrics.TextfilePath,
		MinSpecies:  cfg.Refresh.MinSpecies,
		Concurrency: cfg.Refresh.Concurrency,
		GlobalPass:  cfg.Refresh.GlobalPass,
		FetchPolicy: retry.Policy{Attempts: defaultFetchAttempts, Backoff: 2 * time.Second},
		Logger:      logging.NewComponentLogger(logger, stageName),
	}
	return stack, nil
}

func (s *Stack) buildSounds(cfg *config.Config, logger *slog.Logger, cloud *assets.CloudStore) error {
	limiter := ratelimit.New(cfg.Sounds.RequestsPerSecond, 1)
	lookup := &http.Client{Timeout: seconds(cfg.Sounds.LookupTimeout, 15)}
	download := &http.Client{Timeout: seconds(cfg.Sounds.DownloadTimeout, 30)}

	ebird := sounds.NewEBird(cfg.Sounds.EBirdBaseURL, cfg.Credentials.EBirdToken,
		sounds.WithEBirdHTTPClient(lookup),
		sounds.WithEBirdLimiter(limiter),
	)
	storage, err := taxcache.OpenSQLite(cfg.TaxonomyCachePath())
	if err != nil {
		return fmt.Errorf("taxonomy cache: %w", err)
	}
	s.closers = append(s.closers, storage.Close)
	s.Taxonomy = taxcache.New(storage, ebird.Taxonomy, taxcache.WithLogger(logger))

	var uploader cloudinary.Uploader = sounds.DisabledUploader{}
	if cfg.Credentials.HasCloudinary() {
		client, err := cloudinary.New(cloudinary.Credentials{
			CloudName: cfg.Credentials.CloudinaryCloudName,
			APIKey:    cfg.Credentials.CloudinaryAPIKey,
			APISecret: cfg.Credentials.CloudinaryAPISecret,
		},
			cloudinary.WithBaseURL(cfg.Cloudinary.BaseURL),
			cloudinary.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Cloudinary.TimeoutSecs, 60)}),
		)
		if err != nil {
			return fmt.Errorf("cloudinary client: %w", err)
		}
		uploader = client
	}

	s.Sounds = &sounds.Pipeline{
		Resolver: sounds.Resolver{Direct: ebird, Cache: s.Taxonomy, Logger: logger},
		Library: sounds.NewMacaulay(cfg.Sounds.MacaulaySearchURL, cfg.Sounds.MacaulayAssetURL,
			sounds.WithMacaulayHTTPClients(lookup, download),
			sounds.WithMacaulayLimiter(limiter),
		),
		Uploader:     uploader,
		Store:        cloud,
		ScratchDir:   cfg.Paths.WorkDir,
		FolderPrefix: cfg.Cloudinary.FolderPrefix,
		Policy:       retry.Policy{Attempts: 2, Backoff: time.Second},
		Logger:       logger,
	}
	return nil
}

func seconds(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}
