package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Credentials holds secrets that never live in the TOML file.
type Credentials struct {
	EBirdToken          string `env:"EBIRD_TOKEN"`
	CloudinaryCloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`
	NtfyToken           string `env:"NTFY_TOKEN"`
}

// HasCloudinary reports whether all cloud upload secrets are present.
func (c Credentials) HasCloudinary() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// LoadCredentials reads secrets from the environment, first loading a .env
// file from projectRoot when one exists. Variables already set in the process
// environment take precedence over the file.
func LoadCredentials(projectRoot string) (Credentials, error) {
	if projectRoot != "" {
		if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("load .env: %w", err)
		}
	}
	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	return creds, nil
}
