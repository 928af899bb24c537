// Package sounds acquires one representative call recording per species.
//
// A species code is resolved through the eBird taxonomy API (falling back to
// the monthly taxonomy cache), the best-rated Macaulay Library recording is
// downloaded and verified as audio, uploaded to Cloudinary, and recorded in
// the species' cloud metadata with attribution. Failures are reported with a
// reason and never block image convergence.
package sounds
