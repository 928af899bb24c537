package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRefresh()
	c.normalizeEndpoints()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	root, err := expandPath(strings.TrimSpace(c.Paths.ProjectRoot))
	if err != nil {
		return fmt.Errorf("paths.project_root: %w", err)
	}
	if root == "" {
		if root, err = expandPath("."); err != nil {
			return fmt.Errorf("paths.project_root: %w", err)
		}
	}
	c.Paths.ProjectRoot = root

	fields := []struct {
		name  string
		value *string
	}{
		{"paths.images_dir", &c.Paths.ImagesDir},
		{"paths.cloud_metadata_dir", &c.Paths.CloudMetadataDir},
		{"paths.registry_file", &c.Paths.RegistryFile},
		{"paths.locations_file", &c.Paths.LocationsFile},
		{"paths.location_birds_dir", &c.Paths.LocationBirdsDir},
		{"paths.work_dir", &c.Paths.WorkDir},
		{"paths.state_dir", &c.Paths.StateDir},
		{"logging.dir", &c.Logging.Dir},
	}
	for _, field := range fields {
		resolved, err := c.resolveProjectPath(*field.value)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = resolved
	}
	return nil
}

// resolveProjectPath expands ~ and anchors relative paths at the project root.
func (c *Config) resolveProjectPath(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if !strings.HasPrefix(value, "~") && !filepath.IsAbs(value) {
		value = filepath.Join(c.Paths.ProjectRoot, value)
	}
	return expandPath(value)
}

func (c *Config) normalizeRefresh() {
	if c.Refresh.MaxRetries <= 0 {
		c.Refresh.MaxRetries = 2
	}
	if c.Refresh.Concurrency <= 0 {
		c.Refresh.Concurrency = 1
	}
	if c.Refresh.DefaultDays <= 0 {
		c.Refresh.DefaultDays = 7
	}
	if c.Refresh.MinSpecies < 0 {
		c.Refresh.MinSpecies = 0
	}
}

func (c *Config) normalizeEndpoints() {
	c.BirdReport.Endpoint = strings.TrimSpace(c.BirdReport.Endpoint)
	if c.BirdReport.Endpoint == "" {
		c.BirdReport.Endpoint = defaultBirdReportEndpoint
	}
	if strings.TrimSpace(c.BirdReport.UserAgent) == "" {
		c.BirdReport.UserAgent = defaultUserAgent
	}
	c.Sounds.EBirdBaseURL = strings.TrimRight(strings.TrimSpace(c.Sounds.EBirdBaseURL), "/")
	if c.Sounds.EBirdBaseURL == "" {
		c.Sounds.EBirdBaseURL = defaultEBirdBaseURL
	}
	if strings.TrimSpace(c.Sounds.MacaulaySearchURL) == "" {
		c.Sounds.MacaulaySearchURL = defaultMacaulaySearchURL
	}
	c.Sounds.MacaulayAssetURL = strings.TrimRight(strings.TrimSpace(c.Sounds.MacaulayAssetURL), "/")
	if c.Sounds.MacaulayAssetURL == "" {
		c.Sounds.MacaulayAssetURL = defaultMacaulayAssetURL
	}
	c.Cloudinary.BaseURL = strings.TrimRight(strings.TrimSpace(c.Cloudinary.BaseURL), "/")
	if c.Cloudinary.BaseURL == "" {
		c.Cloudinary.BaseURL = defaultCloudinaryBaseURL
	}
	c.Cloudinary.FolderPrefix = strings.Trim(strings.TrimSpace(c.Cloudinary.FolderPrefix), "/")
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
