// Package species defines sighting records and the pure helpers applied to
// them before they reach the registry: first-seen deduplication across query
// results and slug derivation for filesystem and URL safe identifiers.
package species
