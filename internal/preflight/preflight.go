package preflight

import (
	"context"

	"github.com/MY221B/bird-download/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional results never block a run.
	Optional bool
}

// RunAll executes the local preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results,
		CheckDirectoryAccess("Project root", cfg.Paths.ProjectRoot),
		CheckDirectoryAccess("Images directory", cfg.Paths.ImagesDir),
		CheckDirectoryAccess("Cloud metadata directory", cfg.Paths.CloudMetadataDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFile("Location config", cfg.Paths.LocationsFile),
	)
	results = append(results, CheckCredentials(cfg)...)
	for _, st := range CheckSystemDeps(ctx, cfg) {
		results = append(results, Result{
			Name:     st.Name,
			Passed:   st.Available,
			Detail:   depDetail(st.Command, st.Detail),
			Optional: st.Optional,
		})
	}
	return results
}

// Blocking returns the failed required checks.
func Blocking(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

func depDetail(command, detail string) string {
	if detail != "" {
		return detail
	}
	return command
}
