// Package catalog defines the contract between the release pipeline and the
// media catalog it monitors.
package catalog

import (
	"context"

	"release_bot/internal/model"
)

// MediaEpisode is the media type of single episodes.
const MediaEpisode = "episode"

// SortNewlyAdded orders browse results newest first.
const SortNewlyAdded = "newly_added"

// BrowseOptions selects one page of browse results.
type BrowseOptions struct {
	Start     int
	PageSize  int
	MediaType string
	Sort      string
}

// Client is an authenticated catalog session.
type Client interface {
	// Browse returns one page of entries. A page shorter than PageSize means
	// the listing is exhausted.
	Browse(ctx context.Context, opts BrowseOptions) ([]model.Episode, error)
	Series(ctx context.Context, id string) (*model.Series, error)
	Rating(ctx context.Context, seriesID string) (*model.Rating, error)
	// AudioLanguages maps audio locale tags to display names.
	AudioLanguages(ctx context.Context) (map[string]string, error)
}

// Connector builds a fresh authenticated Client. It is called once per
// release check, so expired sessions are never reused.
type Connector interface {
	Connect(ctx context.Context) (Client, error)
}
