package scripts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MY221B/bird-download/internal/logging"
	"github.com/MY221B/bird-download/internal/registry"
	"github.com/MY221B/bird-download/internal/services"
)

const (
	stageName   = "collaborator"
	tailLines   = 5
	csvFileName = "birds.csv"
)

// Downloader fetches local images for one species.
type Downloader interface {
	Download(ctx context.Context, entry registry.Entry) error
}

// Uploader pushes a species' local images to cloud storage and writes its
// metadata document.
type Uploader interface {
	Upload(ctx context.Context, entry registry.Entry) error
}

// Options configures a Runner.
type Options struct {
	ProjectRoot     string
	ScratchDir      string
	DownloadCommand []string
	UploadCommand   []string
	Timeout         time.Duration
}

// Option customises a Runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runner invokes the configured collaborator commands.
type Runner struct {
	opts   Options
	exec   Executor
	logger *slog.Logger
}

var (
	_ Downloader = (*Runner)(nil)
	_ Uploader   = (*Runner)(nil)
)

// New validates opts and returns a Runner.
func New(opts Options, options ...Option) (*Runner, error) {
	if len(opts.DownloadCommand) == 0 || strings.TrimSpace(opts.DownloadCommand[0]) == "" {
		return nil, errors.New("download command required")
	}
	if len(opts.UploadCommand) == 0 || strings.TrimSpace(opts.UploadCommand[0]) == "" {
		return nil, errors.New("upload command required")
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = os.TempDir()
	}
	r := &Runner{opts: opts, exec: commandExecutor{}, logger: logging.NewNop()}
	for _, opt := range options {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, stageName)
	return r, nil
}

// Download runs the download collaborator for entry.
func (r *Runner) Download(ctx context.Context, entry registry.Entry) error {
	return r.run(ctx, "download", r.opts.DownloadCommand, entry)
}

// Upload runs the upload collaborator for entry.
func (r *Runner) Upload(ctx context.Context, entry registry.Entry) error {
	return r.run(ctx, "upload", r.opts.UploadCommand, entry)
}

func (r *Runner) run(ctx context.Context, op string, template []string, entry registry.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	vars := map[string]string{
		"slug":       entry.Slug,
		"chinese":    entry.Chinese,
		"english":    entry.English,
		"scientific": entry.Scientific,
	}
	if usesPlaceholder(template, "csv") {
		dir, err := os.MkdirTemp(r.opts.ScratchDir, entry.Slug+"-")
		if err != nil {
			return services.Wrap(services.ErrExternalTool, stageName, op, "create scratch dir", err)
		}
		defer os.RemoveAll(dir)
		csvPath := filepath.Join(dir, csvFileName)
		if err := registry.WriteSnapshot(csvPath, []registry.Entry{entry}); err != nil {
			return services.Wrap(services.ErrExternalTool, stageName, op, "write species csv", err)
		}
		vars["csv"] = csvPath
	}

	args := Expand(template, vars)
	// A started collaborator may be writing metadata; it runs to completion
	// (or its timeout) even when the run is cancelled.
	runCtx := context.WithoutCancel(ctx)
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, r.opts.Timeout)
		defer cancel()
	}

	logger := logging.WithContext(services.WithSlug(ctx, entry.Slug), r.logger)
	tail := newTail(tailLines)
	start := time.Now()
	logger.Debug("collaborator starting", logging.String("operation", op), logging.String("command", strings.Join(args, " ")))
	err := r.exec.Run(runCtx, r.opts.ProjectRoot, args[0], args[1:], func(line string) {
		tail.add(line)
		logger.Debug("collaborator output", logging.String("operation", op), logging.String("line", line))
	})
	if err != nil {
		msg := fmt.Sprintf("%s %s failed after %s", op, entry.Slug, time.Since(start).Round(time.Millisecond))
		if out := tail.String(); out != "" {
			msg += ": " + out
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrExternalTool, stageName, op, msg+" (timeout)", context.DeadlineExceeded)
		}
		return services.Wrap(services.ErrExternalTool, stageName, op, msg, err)
	}
	logger.Debug("collaborator finished", logging.String("operation", op), logging.Duration("elapsed", time.Since(start)))
	return nil
}

// Expand substitutes {name} placeholders in every argument.
func Expand(template []string, vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	replacer := strings.NewReplacer(pairs...)
	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = replacer.Replace(arg)
	}
	return out
}

func usesPlaceholder(template []string, name string) bool {
	needle := "{" + name + "}"
	for _, arg := range template {
		if strings.Contains(arg, needle) {
			return true
		}
	}
	return false
}

type tail struct {
	limit int
	lines []string
}

func newTail(limit int) *tail { return &tail{limit: limit} }

func (t *tail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *tail) String() string {
	return services.Truncate(strings.Join(t.lines, " | "), 400)
}
