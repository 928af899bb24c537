// Package services defines shared utilities consumed by the refresh pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp location ids, slugs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers (network, auth, protocol, configuration,
//     validation) plus the Wrap helper so callers can classify failures with
//     errors.Is and decide whether a retry is worthwhile.
//
// Use these helpers when wiring new pipeline logic so error handling and
// observability stay uniform across components.
package services
