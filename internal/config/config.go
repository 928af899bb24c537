package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the on-disk layout of the bird catalog project. Relative
// entries are resolved against ProjectRoot.
type Paths struct {
	ProjectRoot      string `toml:"project_root"`
	ImagesDir        string `toml:"images_dir"`
	CloudMetadataDir string `toml:"cloud_metadata_dir"`
	RegistryFile     string `toml:"registry_file"`
	LocationsFile    string `toml:"locations_file"`
	LocationBirdsDir string `toml:"location_birds_dir"`
	WorkDir          string `toml:"work_dir"`
	StateDir         string `toml:"state_dir"`
}

// BirdReport contains configuration for the encrypted birdreport.cn endpoint.
type BirdReport struct {
	Endpoint          string  `toml:"endpoint"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	UserAgent         string  `toml:"user_agent"`
}

// Sounds contains configuration for the audio acquisition stage.
type Sounds struct {
	Enabled           bool    `toml:"enabled"`
	EBirdBaseURL      string  `toml:"ebird_base_url"`
	MacaulaySearchURL string  `toml:"macaulay_search_url"`
	MacaulayAssetURL  string  `toml:"macaulay_asset_url"`
	LookupTimeout     int     `toml:"lookup_timeout_seconds"`
	DownloadTimeout   int     `toml:"download_timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Refresh contains the knobs of the convergence loop.
type Refresh struct {
	MaxRetries  int  `toml:"max_retries"`
	Concurrency int  `toml:"concurrency"`
	DefaultDays int  `toml:"default_days"`
	MinSpecies  int  `toml:"min_species"`
	GlobalPass  bool `toml:"global_pass"`
}

// Collaborators names the external download/upload scripts.
type Collaborators struct {
	DownloadCommand []string `toml:"download_command"`
	UploadCommand   []string `toml:"upload_command"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
}

// Cloudinary contains non-secret cloud storage settings. Secrets come from
// the environment (see Credentials).
type Cloudinary struct {
	BaseURL      string `toml:"base_url"`
	FolderPrefix string `toml:"folder_prefix"`
	TimeoutSecs  int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnlyOnFailure  bool   `toml:"only_on_failure"`
}

// Metrics contains configuration for the Prometheus textfile export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
}

// Config encapsulates all configuration values for birdsync.
//
// Configuration sections by subsystem:
//   - Paths: project layout (images, cloud metadata, registry, locations)
//   - BirdReport: encrypted sighting endpoint
//   - Sounds: eBird/Macaulay audio acquisition
//   - Refresh: retry budget, concurrency, date window defaults
//   - Collaborators: external download/upload commands
//   - Cloudinary: audio upload target
//   - Notifications: ntfy run summaries
//   - Metrics: Prometheus textfile output
//   - Logging: log format, level, and directory
type Config struct {
	Paths         Paths         `toml:"paths"`
	BirdReport    BirdReport    `toml:"birdreport"`
	Sounds        Sounds        `toml:"sounds"`
	Refresh       Refresh       `toml:"refresh"`
	Collaborators Collaborators `toml:"collaborators"`
	Cloudinary    Cloudinary    `toml:"cloudinary"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`

	Credentials Credentials `toml:"-"`
}

const defaultConfigLocation = "~/.config/birdsync/config.toml"

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigLocation)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized and credentials loaded from the environment.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	creds, err := LoadCredentials(cfg.Paths.ProjectRoot)
	if err != nil {
		return nil, "", false, err
	}
	cfg.Credentials = creds

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigLocation)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("birdsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the writable directories a refresh run needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ImagesDir, c.Paths.CloudMetadataDir, c.Paths.LocationBirdsDir, c.Paths.WorkDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TaxonomyCachePath returns the sqlite database used by the taxonomy cache.
func (c *Config) TaxonomyCachePath() string {
	return filepath.Join(c.Paths.StateDir, "taxonomy.db")
}

// RunLockPath returns the lock file that keeps refresh runs exclusive.
func (c *Config) RunLockPath() string {
	return filepath.Join(c.Paths.StateDir, "refresh.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
