// Package release finds newly aired catalog episodes and announces each of them
// exactly once.
package release

import (
	"context"
	"log/slog"
	"time"

	"release_bot/internal/catalog"
	"release_bot/internal/filter"
	"release_bot/internal/model"
	"release_bot/internal/storage"
)

// Scanner pages through the newest catalog episodes and collects the ones that
// aired today and have not been announced yet.
type Scanner struct {
	store    storage.Storage
	log      *slog.Logger
	pageSize int
	maxItems int
	now      func() time.Time
}

// NewScanner creates a Scanner that inspects at most one page of pageSize items
// per scan.
func NewScanner(store storage.Storage, pageSize int, log *slog.Logger) *Scanner {
	return &Scanner{
		store:    store,
		log:      log,
		pageSize: pageSize,
		maxItems: pageSize,
		now:      time.Now,
	}
}

// IsNew reports whether no announcement has been recorded for id.
// It always asks the store, which is the only state shared between cycles.
func (s *Scanner) IsNew(ctx context.Context, id string) (bool, error) {
	announced, err := s.store.HasEpisode(ctx, id)
	if err != nil {
		return false, err
	}
	return !announced, nil
}

// Scan returns the candidates for this cycle in catalog order.
//
// Scanning stops when the listing is exhausted, when maxItems entries have been
// inspected, or after a full page in which nothing aired today.
func (s *Scanner) Scan(ctx context.Context, client catalog.Client) ([]model.Episode, error) {
	now := s.now()

	var (
		candidates []model.Episode
		seen       = make(map[string]bool)
		inspected  int
	)
	for inspected < s.maxItems {
		if err := ctx.Err(); err != nil {
			return nil, &ScanError{Stage: StageBrowse, Cause: err}
		}

		size := min(s.pageSize, s.maxItems-inspected)
		page, err := client.Browse(ctx, catalog.BrowseOptions{
			Start:     inspected,
			PageSize:  size,
			MediaType: catalog.MediaEpisode,
			Sort:      catalog.SortNewlyAdded,
		})
		if err != nil {
			return nil, &ScanError{Stage: StageBrowse, Cause: err}
		}

		anyToday := false
		for _, ep := range page {
			if inspected >= s.maxItems {
				break
			}
			inspected++

			if filter.AiredToday(ep, now) {
				anyToday = true
			}
			if !filter.Admissible(ep, now) || seen[ep.ID] {
				continue
			}
			seen[ep.ID] = true

			isNew, err := s.IsNew(ctx, ep.ID)
			if err != nil {
				return nil, &ScanError{Stage: StageLookup, Cause: err}
			}
			if isNew {
				candidates = append(candidates, ep)
			}
		}

		if len(page) < size {
			break
		}
		if !anyToday {
			s.log.Debug("no same-day episodes on page, stopping scan", "inspected", inspected)
			break
		}
	}

	s.log.Info("scan finished", "inspected", inspected, "candidates", len(candidates))
	return candidates, nil
}
