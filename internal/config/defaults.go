package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultBirdReportEndpoint = "https://api.birdreport.cn/front/record/activity/taxon"
	defaultUserAgent          = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultEBirdBaseURL       = "https://api.ebird.org/v2"
	defaultMacaulaySearchURL  = "https://search.macaulaylibrary.org/api/v1/search"
	defaultMacaulayAssetURL   = "https://cdn.download.ams.birds.cornell.edu/api/v1/asset"
	defaultCloudinaryBaseURL  = "https://api.cloudinary.com"
)

// Default returns a Config populated with repository defaults. Project paths
// are relative to the project root until normalize resolves them.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectRoot:      ".",
			ImagesDir:        "images",
			CloudMetadataDir: "cloudinary_uploads",
			RegistryFile:     "all_birds.csv",
			LocationsFile:    filepath.Join("config", "birdreport_locations.json"),
			LocationBirdsDir: filepath.Join("feather-flash-quiz", "location_birds"),
			WorkDir:          filepath.Join("tmp", "weekly_refresh"),
			StateDir:         defaultStateDir(),
		},
		BirdReport: BirdReport{
			Endpoint:          defaultBirdReportEndpoint,
			TimeoutSeconds:    30,
			RequestsPerSecond: 1,
			UserAgent:         defaultUserAgent,
		},
		Sounds: Sounds{
			Enabled:           true,
			EBirdBaseURL:      defaultEBirdBaseURL,
			MacaulaySearchURL: defaultMacaulaySearchURL,
			MacaulayAssetURL:  defaultMacaulayAssetURL,
			LookupTimeout:     10,
			DownloadTimeout:   30,
			RequestsPerSecond: 2,
		},
		Refresh: Refresh{
			MaxRetries:  2,
			Concurrency: 2,
			DefaultDays: 7,
			MinSpecies:  10,
			GlobalPass:  true,
		},
		Collaborators: Collaborators{
			DownloadCommand: []string{"tools/batch_fetch.sh", "{csv}", "--parallel", "3", "--skip-existing"},
			UploadCommand:   []string{"python3", "tools/upload_to_cloudinary.py", "{slug}", "{chinese}", "{english}", "{scientific}"},
			TimeoutSeconds:  1800,
		},
		Cloudinary: Cloudinary{
			BaseURL:      defaultCloudinaryBaseURL,
			FolderPrefix: "bird-gallery",
			TimeoutSecs:  60,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}

func defaultStateDir() string {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "birdsync")
	}
	return "~/.local/state/birdsync"
}
