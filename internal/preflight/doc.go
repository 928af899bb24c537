// Package preflight provides readiness checks for the filesystem layout,
// credentials and external programs birdsync depends on.
//
// These checks run in two contexts:
//   - The refresh command calls RunAll before processing any location. A
//     failed required check aborts the run before any external call is made.
//   - The CLI "birdsync status" command displays every check, including the
//     optional online checks.
package preflight
