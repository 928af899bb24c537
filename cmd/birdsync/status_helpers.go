package main

import (
	"github.com/MY221B/bird-download/internal/assets"
	"github.com/MY221B/bird-download/internal/config"
	"github.com/MY221B/bird-download/internal/converge"
	"github.com/MY221B/bird-download/internal/registry"
)

type pendingSpecies struct {
	Entry registry.Entry
	State converge.State
	Asset assets.State
}

type coverage struct {
	Total      int
	LocalOnly  int
	Uploaded   int
	WithSound  int
	Missing    int
	Unreadable int
	Pending    []pendingSpecies
}

func inspectorFor(cfg *config.Config) assets.Inspector {
	return assets.Inspector{
		Local: assets.NewLocalStore(cfg.Paths.ImagesDir),
		Cloud: assets.NewCloudStore(cfg.Paths.CloudMetadataDir),
	}
}

// computeCoverage classifies every entry without calling any collaborator.
func computeCoverage(entries []registry.Entry, inspector converge.Inspector) coverage {
	cov := coverage{Total: len(entries)}
	for _, e := range entries {
		st, err := inspector.Inspect(e.Slug)
		if err != nil {
			cov.Unreadable++
			cov.Pending = append(cov.Pending, pendingSpecies{Entry: e, State: converge.NeedsDownload, Asset: st})
			continue
		}
		state := converge.Classify(st)
		switch state {
		case converge.NeedsDownload:
			cov.Missing++
		case converge.NeedsUpload:
			cov.LocalOnly++
		case converge.NeedsSound:
			cov.Uploaded++
		case converge.Satisfied:
			cov.Uploaded++
			cov.WithSound++
		}
		if state != converge.Satisfied {
			cov.Pending = append(cov.Pending, pendingSpecies{Entry: e, State: state, Asset: st})
		}
	}
	return cov
}
