// Package report aggregates per-location and global convergence outcomes
// into the end-of-run summary and renders it as text.
package report
