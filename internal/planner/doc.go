// Package planner turns a configured location and a date window into the
// birdreport queries that cover it.
//
// Plan resolves the effective date range (explicit start/end, a lookback in
// days, the location's own defaults, then the configured default), splits it
// into calendar-month segments, and emits one query group per point alias or
// district depending on the location's query level. Each group holds one
// payload per month segment; callers fetch every payload in a group and merge
// the results.
package planner
