// Package scripts runs the external download and upload collaborators.
//
// Both collaborators are configured as argument templates. Placeholders
// {slug}, {chinese}, {english}, {scientific} and {csv} are substituted per
// invocation; {csv} points at a single-row registry file written to a scratch
// directory for scripts that take a species list. Commands run from the
// project root with their combined output forwarded to the debug log, and a
// non-zero exit is reported as services.ErrExternalTool carrying the last
// lines of output.
package scripts
