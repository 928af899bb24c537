package sounds

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/MY221B/bird-download/internal/logging"
	"github.com/MY221B/bird-download/internal/services"
	"github.com/MY221B/bird-download/internal/taxcache"
)

// CodeLookup resolves a scientific name directly.
type CodeLookup interface {
	SpeciesCode(ctx context.Context, scientific string) (string, error)
}

// Resolver finds species codes, trying the direct lookup first and then the
// cached full taxonomy.
type Resolver struct {
	Direct CodeLookup
	Cache  *taxcache.Cache
	Logger *slog.Logger
}

// Resolve returns the species code for the names, or services.ErrNotFound.
func (r Resolver) Resolve(ctx context.Context, scientific, english string) (string, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	var directErr error
	if r.Direct != nil {
		code, err := r.Direct.SpeciesCode(ctx, scientific)
		if err == nil && code != "" {
			return code, nil
		}
		if err != nil && !errors.Is(err, services.ErrNotFound) {
			directErr = err
			logger.Debug("direct species lookup failed", logging.String("scientific_name", scientific), logging.Error(err))
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	if r.Cache != nil {
		if t, ok, err := r.Cache.ByScientificName(ctx, scientific); err == nil && ok {
			return t.SpeciesCode, nil
		} else if err != nil {
			logger.Debug("taxonomy cache unavailable", logging.Error(err))
			return "", errors.Join(services.Wrap(services.ErrNotFound, ebirdStage, "species code", scientific, nil), directErr, err)
		}
		for _, query := range []string{scientific, english} {
			if strings.TrimSpace(query) == "" {
				continue
			}
			if t, ok, err := r.Cache.Search(ctx, query); err == nil && ok {
				return t.SpeciesCode, nil
			}
		}
	}
	return "", errors.Join(services.Wrap(services.ErrNotFound, ebirdStage, "species code", scientific, nil), directErr)
}
