// Package converge drives each species toward a fully published state.
//
// Every slug moves through NEEDS_DOWNLOAD, NEEDS_UPLOAD and NEEDS_SOUND to
// SATISFIED. The download and upload stages call the external collaborators
// and re-check the asset stores, bounded by a per-stage retry budget; a stage
// that exhausts its budget leaves the slug UNRECOVERABLE for this run. Sound
// acquisition is attempted once per pass and never blocks convergence.
//
// Slugs are independent. A weighted semaphore bounds how many slugs are
// worked on at once so collaborator processes and upstream APIs are not
// flooded; retries stay inside the slug's own goroutine.
package converge
