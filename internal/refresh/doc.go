// Package refresh orchestrates a full catalog refresh.
//
// A run takes the run lock, then processes each selected location:
// plan the month-segmented queries, fetch and merge sightings, reconcile the
// registry, snapshot the species list into the work directory, converge the
// location's slugs and publish their metadata documents into the
// location_birds tree. Locations run concurrently up to the configured limit
// and a failure in one never stops the others. After every location a global
// pass converges all registry slugs, and the aggregated report feeds the
// metrics textfile and the run notification.
package refresh
