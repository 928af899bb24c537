package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// MaxConcurrency bounds parallel collaborator invocations so third-party rate
// limits are not tripped.
const MaxConcurrency = 4

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}
	if err := c.validateRefresh(); err != nil {
		return err
	}
	if err := c.validateCollaborators(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.RegistryFile == "" {
		return errors.New("paths.registry_file must be set")
	}
	if c.Paths.LocationsFile == "" {
		return errors.New("paths.locations_file must be set")
	}
	if c.Paths.CloudMetadataDir == "" || c.Paths.ImagesDir == "" {
		return errors.New("paths.images_dir and paths.cloud_metadata_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateEndpoints() error {
	for name, raw := range map[string]string{
		"birdreport.endpoint":        c.BirdReport.Endpoint,
		"sounds.ebird_base_url":      c.Sounds.EBirdBaseURL,
		"sounds.macaulay_search_url": c.Sounds.MacaulaySearchURL,
		"sounds.macaulay_asset_url":  c.Sounds.MacaulayAssetURL,
		"cloudinary.base_url":        c.Cloudinary.BaseURL,
	} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.BirdReport.TimeoutSeconds <= 0 {
		return errors.New("birdreport.timeout_seconds must be positive")
	}
	if c.Sounds.LookupTimeout <= 0 || c.Sounds.DownloadTimeout <= 0 {
		return errors.New("sounds timeouts must be positive")
	}
	return nil
}

func (c *Config) validateRefresh() error {
	if c.Refresh.Concurrency > MaxConcurrency {
		return fmt.Errorf("refresh.concurrency must be between 1 and %d, got %d", MaxConcurrency, c.Refresh.Concurrency)
	}
	if c.Refresh.MaxRetries > 10 {
		return fmt.Errorf("refresh.max_retries must be at most 10, got %d", c.Refresh.MaxRetries)
	}
	return nil
}

func (c *Config) validateCollaborators() error {
	if len(c.Collaborators.DownloadCommand) == 0 || strings.TrimSpace(c.Collaborators.DownloadCommand[0]) == "" {
		return errors.New("collaborators.download_command must name an executable")
	}
	if len(c.Collaborators.UploadCommand) == 0 || strings.TrimSpace(c.Collaborators.UploadCommand[0]) == "" {
		return errors.New("collaborators.upload_command must name an executable")
	}
	if c.Collaborators.TimeoutSeconds <= 0 {
		return errors.New("collaborators.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
}
