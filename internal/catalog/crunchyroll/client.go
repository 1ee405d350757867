package crunchyroll

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"release_bot/internal/catalog"
	"release_bot/internal/model"
)

// Client is an authenticated API session.
type Client struct {
	conn  *Connector
	token string
}

var _ catalog.Client = (*Client)(nil)

type browseResponse struct {
	Total int           `json:"total"`
	Data  []browseEntry `json:"data"`
}

type browseEntry struct {
	ID              string           `json:"id"`
	Type            string           `json:"type"`
	Title           string           `json:"title"`
	SlugTitle       string           `json:"slug_title"`
	Description     string           `json:"description"`
	EpisodeMetadata *episodeMetadata `json:"episode_metadata"`
}

type episodeMetadata struct {
	SeriesID             string    `json:"series_id"`
	SeriesTitle          string    `json:"series_title"`
	SeriesSlugTitle      string    `json:"series_slug_title"`
	SeasonID             string    `json:"season_id"`
	SeasonNumber         int       `json:"season_number"`
	EpisodeNumber        *int      `json:"episode_number"`
	AudioLocale          string    `json:"audio_locale"`
	IsClip               bool      `json:"is_clip"`
	FreeAvailableDate    time.Time `json:"free_available_date"`
	PremiumAvailableDate time.Time `json:"premium_available_date"`
	DurationMS           int64     `json:"duration_ms"`
	MaturityRatings      []string  `json:"maturity_ratings"`
	TenantCategories     []string  `json:"tenant_categories"`
}

// Browse returns one page of the catalog listing. Entries without episode
// metadata are returned as clips so the page length still matches the
// listing while the release filter drops them.
func (c *Client) Browse(ctx context.Context, opts catalog.BrowseOptions) ([]model.Episode, error) {
	q := url.Values{}
	q.Set("start", strconv.Itoa(opts.Start))
	q.Set("n", strconv.Itoa(opts.PageSize))
	q.Set("sort_by", opts.Sort)
	q.Set("type", opts.MediaType)
	q.Set("locale", c.conn.cfg.CatalogLocale)

	var resp browseResponse
	if err := c.get(ctx, c.conn.cfg.CatalogAPIURL+"/content/v2/discover/browse?"+q.Encode(), true, &resp); err != nil {
		return nil, fmt.Errorf("browse: %w", err)
	}

	episodes := make([]model.Episode, 0, len(resp.Data))
	for _, e := range resp.Data {
		if e.Type != catalog.MediaEpisode || e.EpisodeMetadata == nil {
			episodes = append(episodes, model.Episode{ID: e.ID, Title: e.Title, IsClip: true})
			continue
		}
		episodes = append(episodes, e.toEpisode())
	}
	return episodes, nil
}

func (e browseEntry) toEpisode() model.Episode {
	m := e.EpisodeMetadata
	ep := model.Episode{
		ID:                 e.ID,
		Title:              e.Title,
		SlugTitle:          e.SlugTitle,
		Description:        e.Description,
		SeriesID:           m.SeriesID,
		SeriesTitle:        m.SeriesTitle,
		SeriesSlugTitle:    m.SeriesSlugTitle,
		SeasonID:           m.SeasonID,
		SeasonNumber:       m.SeasonNumber,
		AudioLocale:        m.AudioLocale,
		IsClip:             m.IsClip,
		FreeAvailableAt:    m.FreeAvailableDate,
		PremiumAvailableAt: m.PremiumAvailableDate,
		Duration:           time.Duration(m.DurationMS) * time.Millisecond,
		Categories:         m.TenantCategories,
		MaturityRatings:    m.MaturityRatings,
	}
	if m.EpisodeNumber != nil {
		ep.EpisodeNumber = *m.EpisodeNumber
	}
	return ep
}

type seriesResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		SlugTitle string `json:"slug_title"`
		Images    struct {
			PosterTall [][]image `json:"poster_tall"`
			PosterWide [][]image `json:"poster_wide"`
		} `json:"images"`
	} `json:"data"`
}

type image struct {
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Series returns series metadata including poster images.
func (c *Client) Series(ctx context.Context, id string) (*model.Series, error) {
	u := fmt.Sprintf("%s/content/v2/cms/series/%s?locale=%s", c.conn.cfg.CatalogAPIURL,
		url.PathEscape(id), url.QueryEscape(c.conn.cfg.CatalogLocale))

	var resp seriesResponse
	if err := c.get(ctx, u, true, &resp); err != nil {
		return nil, fmt.Errorf("series %s: %w", id, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("series %s: empty response", id)
	}

	d := resp.Data[0]
	return &model.Series{
		ID:         d.ID,
		Title:      d.Title,
		SlugTitle:  d.SlugTitle,
		PosterTall: flatten(d.Images.PosterTall),
		PosterWide: flatten(d.Images.PosterWide),
	}, nil
}

func flatten(sets [][]image) []model.Image {
	var out []model.Image
	for _, set := range sets {
		for _, img := range set {
			out = append(out, model.Image{Source: img.Source, Width: img.Width, Height: img.Height})
		}
	}
	return out
}

type ratingResponse struct {
	Average string `json:"average"`
	Total   int64  `json:"total"`
}

// Rating returns the aggregate user rating of a series.
func (c *Client) Rating(ctx context.Context, seriesID string) (*model.Rating, error) {
	u := fmt.Sprintf("%s/content-reviews/v2/rating/series/%s", c.conn.cfg.CatalogAPIURL, url.PathEscape(seriesID))

	var resp ratingResponse
	if err := c.get(ctx, u, true, &resp); err != nil {
		return nil, fmt.Errorf("rating %s: %w", seriesID, err)
	}
	return &model.Rating{Average: resp.Average, Total: resp.Total}, nil
}

// AudioLanguages fetches the public locale-to-language table.
func (c *Client) AudioLanguages(ctx context.Context) (map[string]string, error) {
	var names map[string]string
	if err := c.get(ctx, c.conn.cfg.AudioLocalesURL, false, &names); err != nil {
		return nil, fmt.Errorf("audio languages: %w", err)
	}
	return names, nil
}

func (c *Client) get(ctx context.Context, u string, auth bool, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.conn.doJSON(req, v)
}
