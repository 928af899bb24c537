// Package config loads, normalizes, and validates birdsync configuration data.
//
// It supplies repository defaults, anchors relative project paths at the
// configured project root, reads TOML files, and loads credentials such as
// EBIRD_TOKEN and the Cloudinary keys from the environment (optionally seeded
// from a .env file next to the project). The Config type centralizes every
// knob the CLI and the refresh pipeline need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
