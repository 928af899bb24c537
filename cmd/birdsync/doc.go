// Package main hosts the birdsync CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves configuration and logging once, then
// hands off to the internal packages: refresh runs the full location pipeline,
// fetch queries a single location or search URL, sounds backfills audio,
// registry and status inspect the catalog, and config scaffolds the TOML file.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
