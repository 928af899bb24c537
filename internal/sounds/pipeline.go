package sounds

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/MY221B/bird-download/internal/assets"
	"github.com/MY221B/bird-download/internal/cloudinary"
	"github.com/MY221B/bird-download/internal/logging"
	"github.com/MY221B/bird-download/internal/retry"
	"github.com/MY221B/bird-download/internal/services"
)

// Failure reasons reported per slug.
const (
	ReasonMissingBirdInfo   = "missing bird info"
	ReasonMissingScientific = "missing scientific name"
	ReasonNoSpeciesCode     = "no species code"
	ReasonNoAudio           = "no audio found"
	ReasonDownloadFailed    = "download failed"
	ReasonUploadFailed      = "upload failed"
	ReasonMetadataFailed    = "metadata update failed"
)

const (
	macaulayLicense    = "© Cornell Lab of Ornithology (non-commercial use)"
	macaulayLicenseURL = "https://support.ebird.org/en/support/solutions/articles/48001064570"
	pendingCreditNote  = "署名信息待补充"
	unknownRecordist   = "Unknown"
	defaultFolderRoot  = "bird-gallery"
)

var assetFilePattern = regexp.MustCompile(`_(\d+)\.(mp3|wav|ogg|m4a)$`)

// MetadataStore is the subset of the cloud metadata store the pipeline uses.
type MetadataStore interface {
	Exists(slug string) bool
	Load(slug string) (*assets.Metadata, error)
	UpsertSound(slug string, sound assets.Sound) error
}

// CodeResolver finds eBird species codes.
type CodeResolver interface {
	Resolve(ctx context.Context, scientific, english string) (string, error)
}

// Result is the outcome for one slug.
type Result struct {
	Slug    string
	Name    string
	Success bool
	Reason  string
	Err     error
}

// Summary aggregates a batch.
type Summary struct {
	// Present lists slugs that already had a sound.
	Present   []string
	Succeeded []string
	Failed    []Result
}

// Pipeline acquires sounds for species with cloud metadata.
type Pipeline struct {
	Resolver     CodeResolver
	Library      Library
	Uploader     cloudinary.Uploader
	Store        MetadataStore
	ScratchDir   string
	FolderPrefix string
	// Policy bounds download and upload attempts for retryable errors.
	Policy retry.Policy
	Logger *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return logging.NewNop()
	}
	return p.Logger
}

// Candidates splits slugs into those missing a sound and those that have
// one. Slugs without a metadata document are skipped since images come
// first; unreadable documents count as missing.
func (p *Pipeline) Candidates(slugs []string) (missing, present []string) {
	for _, slug := range slugs {
		if !p.Store.Exists(slug) {
			continue
		}
		meta, err := p.Store.Load(slug)
		if err != nil {
			p.logger().Warn("metadata unreadable",
				logging.String(logging.FieldSlug, slug),
				logging.String(logging.FieldEventType, "sound_metadata_unreadable"),
				logging.Error(err),
				logging.String(logging.FieldImpact, "sound will be acquired again"))
			missing = append(missing, slug)
			continue
		}
		if meta.HasSound() {
			present = append(present, slug)
		} else {
			missing = append(missing, slug)
		}
	}
	return missing, present
}

// Run acquires sounds for every candidate in slugs. Cancellation stops
// before the next slug.
func (p *Pipeline) Run(ctx context.Context, slugs []string) Summary {
	missing, present := p.Candidates(slugs)
	summary := Summary{Present: present}
	p.logger().Info("sound acquisition started",
		logging.Int("missing", len(missing)),
		logging.Int("present", len(present)))
	for _, slug := range missing {
		if ctx.Err() != nil {
			break
		}
		res := p.Acquire(ctx, slug)
		if res.Success {
			summary.Succeeded = append(summary.Succeeded, slug)
		} else {
			summary.Failed = append(summary.Failed, res)
		}
	}
	return summary
}

// Acquire runs the full chain for one slug.
func (p *Pipeline) Acquire(ctx context.Context, slug string) Result {
	ctx = services.WithSlug(ctx, slug)
	ctx = services.WithStage(ctx, "sounds")
	logger := logging.WithContext(ctx, p.logger())
	res := Result{Slug: slug, Name: slug}
	fail := func(reason string, err error) Result {
		res.Reason = reason
		res.Err = err
		attrs := []logging.Attr{logging.String("reason", reason)}
		if err != nil {
			attrs = append(attrs, logging.Error(err))
		}
		logging.WarnWithContext(logger, "sound acquisition failed", "sound_failed", attrs...)
		return res
	}

	meta, err := p.Store.Load(slug)
	if err != nil || meta == nil || len(meta.BirdInfo) == 0 {
		return fail(ReasonMissingBirdInfo, err)
	}
	info := meta.BirdInfo
	if name := firstNonEmpty(info.Chinese(), info.English()); name != "" {
		res.Name = name
	}
	scientific := info.Scientific()
	if scientific == "" {
		return fail(ReasonMissingScientific, nil)
	}

	code, err := p.Resolver.Resolve(ctx, scientific, info.English())
	if err != nil || code == "" {
		return fail(ReasonNoSpeciesCode, err)
	}
	logger.Debug("species code resolved", logging.String("species_code", code))

	rec, err := p.Library.BestRecording(ctx, code)
	if err != nil || rec == nil {
		return fail(ReasonNoAudio, err)
	}

	var localPath string
	err = retry.Do(ctx, p.Policy, func(ctx context.Context, _ int) error {
		var derr error
		localPath, derr = p.Library.Download(ctx, *rec, p.scratch(), slug)
		return derr
	}, services.IsRetryable)
	if err != nil {
		return fail(ReasonDownloadFailed, err)
	}
	defer func() { _ = os.Remove(localPath) }()

	var uploaded *cloudinary.UploadResult
	err = retry.Do(ctx, p.Policy, func(ctx context.Context, _ int) error {
		var uerr error
		uploaded, uerr = p.Uploader.Upload(ctx, cloudinary.UploadRequest{
			FilePath: localPath,
			Folder:   p.folder(slug),
		})
		return uerr
	}, services.IsRetryable)
	if err != nil {
		return fail(ReasonUploadFailed, err)
	}

	sound := BuildSound(filepath.Base(localPath), uploaded)
	if err := p.Store.UpsertSound(slug, sound); err != nil {
		return fail(ReasonMetadataFailed, err)
	}
	res.Success = true
	logger.Info("sound acquired",
		logging.String("asset_id", rec.AssetID),
		logging.String("url", sound.URL))
	return res
}

func (p *Pipeline) scratch() string {
	if p.ScratchDir != "" {
		return p.ScratchDir
	}
	return filepath.Join(os.TempDir(), "birdsync-sounds")
}

func (p *Pipeline) folder(slug string) string {
	root := p.FolderPrefix
	if root == "" {
		root = defaultFolderRoot
	}
	return path.Join(root, slug, "sounds")
}

// BuildSound converts an upload result into a metadata entry. Files named
// "<slug>_<digits>.<ext>" are credited to the Macaulay Library asset.
func BuildSound(fileName string, up *cloudinary.UploadResult) assets.Sound {
	sound := assets.Sound{OriginalFile: fileName}
	if up != nil {
		sound.URL = up.SecureURL
		sound.PublicID = up.PublicID
		sound.Duration = up.Duration
		sound.Format = up.Format
		sound.Bytes = up.Bytes
		sound.BitRate = up.BitRate
		if up.Audio != nil {
			sound.AudioCodec = up.Audio.Codec
			sound.AudioFrequency = up.Audio.Frequency
		}
	}
	if m := assetFilePattern.FindStringSubmatch(fileName); m != nil {
		sound.Attribution = assets.SoundAttribution{
			Recordist:  unknownRecordist,
			Source:     assets.Macaulay.Key,
			SourceID:   m[1],
			AssetURL:   assets.Macaulay.AssetURL(m[1]),
			License:    macaulayLicense,
			LicenseURL: macaulayLicenseURL,
		}
		return sound
	}
	note := pendingCreditNote
	sound.Attribution = assets.SoundAttribution{Note: &note}
	return sound
}

// Reasons counts failures by reason.
func (s Summary) Reasons() map[string]int {
	counts := make(map[string]int)
	for _, f := range s.Failed {
		counts[f.Reason]++
	}
	return counts
}

// Attempted is the number of slugs the batch tried.
func (s Summary) Attempted() int { return len(s.Succeeded) + len(s.Failed) }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var errNoUploader = errors.New("sounds: uploader not configured")

// DisabledUploader rejects every upload; it stands in when Cloudinary
// credentials are absent so failures surface as "upload failed".
type DisabledUploader struct{}

func (DisabledUploader) Upload(context.Context, cloudinary.UploadRequest) (*cloudinary.UploadResult, error) {
	return nil, services.Wrap(services.ErrAuth, "cloudinary", "upload", "credentials missing", errNoUploader)
}
