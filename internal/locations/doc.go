// Package locations loads the birding-location configuration consumed by the
// refresh pipeline.
//
// The configuration is a JSON document holding a "locations" array (a bare
// array is accepted too). Each Location names a place, the birdreport query
// level used to search it, optional point aliases and districts, and optional
// per-location payload overrides. Entries are validated with
// go-playground/validator before a run starts; the loaded set is read-only
// for the duration of a run.
package locations
