// Package taxcache caches the eBird taxonomy used to resolve species codes
// when a direct lookup by scientific name fails.
//
// The taxonomy is keyed by calendar month ("YYYYMM"): the first lookup in a
// new month fetches the full taxonomy once and stores it; later lookups in
// the same month are served from storage. Storage is injectable, with an
// in-memory implementation for tests and a SQLite implementation
// (modernc.org/sqlite) that survives across runs.
package taxcache
