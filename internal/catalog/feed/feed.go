// Package feed implements the catalog contract on top of an RSS feed that
// carries episode metadata in crunchyroll: and media: extension elements.
//
// The feed is downloaded once per Connect; the returned Client pages over the
// parsed items and answers series lookups from them. Feeds carry no ratings,
// so Rating always reports zero votes.
package feed

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"release_bot/internal/catalog"
	"release_bot/internal/model"
)

const (
	nsCatalog = "crunchyroll"
	nsMedia   = "media"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Connector downloads the feed at a fixed URL.
type Connector struct {
	client HTTPClient
	url    string
}

var _ catalog.Connector = (*Connector)(nil)

// NewConnector creates a Connector for the feed at url.
func NewConnector(client HTTPClient, url string) *Connector {
	return &Connector{client: client, url: url}
}

// Connect fetches and parses the feed.
func (c *Connector) Connect(ctx context.Context) (catalog.Client, error) {
	f, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return newClient(f.Items), nil
}

func (c *Connector) fetch(ctx context.Context) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "ReleaseBot/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	f, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return f, nil
}

// Client serves catalog requests from one parsed feed.
type Client struct {
	episodes []model.Episode
	series   map[string]*model.Series
}

var _ catalog.Client = (*Client)(nil)

func newClient(items []*gofeed.Item) *Client {
	c := &Client{series: make(map[string]*model.Series)}
	for _, item := range items {
		ep := ItemEpisode(item)
		c.episodes = append(c.episodes, ep)

		s, ok := c.series[ep.SeriesID]
		if !ok {
			s = &model.Series{ID: ep.SeriesID, Title: ep.SeriesTitle, SlugTitle: ep.SeriesSlugTitle}
			c.series[ep.SeriesID] = s
		}
		s.PosterTall = append(s.PosterTall, thumbnails(item)...)
	}

	// Newest first, matching the API's newly_added order.
	sort.SliceStable(c.episodes, func(i, j int) bool {
		return c.episodes[i].PremiumAvailableAt.After(c.episodes[j].PremiumAvailableAt)
	})
	return c
}

// Browse returns the requested slice of feed items.
func (c *Client) Browse(_ context.Context, opts catalog.BrowseOptions) ([]model.Episode, error) {
	if opts.Start >= len(c.episodes) {
		return nil, nil
	}
	end := min(opts.Start+opts.PageSize, len(c.episodes))
	page := make([]model.Episode, end-opts.Start)
	copy(page, c.episodes[opts.Start:end])
	return page, nil
}

// Series returns the series assembled from feed items.
func (c *Client) Series(_ context.Context, id string) (*model.Series, error) {
	s, ok := c.series[id]
	if !ok {
		return nil, fmt.Errorf("series %s: not in feed", id)
	}
	cp := *s
	return &cp, nil
}

// Rating always reports an unrated series.
func (c *Client) Rating(_ context.Context, _ string) (*model.Rating, error) {
	return &model.Rating{}, nil
}

// AudioLanguages returns an empty table, leaving display names to the
// standard language names.
func (c *Client) AudioLanguages(_ context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

// ItemID returns the catalog id of a feed item.
// Items without a mediaId fall back to the GUID, then to a SHA-256 hash of
// title+link.
func ItemID(item *gofeed.Item) string {
	if id := extValue(item, nsCatalog, "mediaId"); id != "" {
		return id
	}
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// ItemEpisode converts a feed item into a catalog episode.
func ItemEpisode(item *gofeed.Item) model.Episode {
	title := extValue(item, nsCatalog, "episodeTitle")
	if title == "" {
		title = item.Title
	}
	ep := model.Episode{
		ID:                 ItemID(item),
		Title:              title,
		SlugTitle:          extValue(item, nsCatalog, "slug"),
		Description:        item.Description,
		SeriesID:           extValue(item, nsCatalog, "seriesId"),
		SeriesTitle:        extValue(item, nsCatalog, "seriesTitle"),
		SeriesSlugTitle:    extValue(item, nsCatalog, "seriesSlug"),
		SeasonID:           extValue(item, nsCatalog, "seasonId"),
		SeasonNumber:       extInt(item, "season"),
		EpisodeNumber:      extInt(item, "episodeNumber"),
		AudioLocale:        extValue(item, nsCatalog, "audioLocale"),
		IsClip:             extValue(item, nsCatalog, "isClip") == "true",
		FreeAvailableAt:    extTime(item, "freePubDate"),
		PremiumAvailableAt: extTime(item, "premiumPubDate"),
		Duration:           time.Duration(extInt(item, "duration")) * time.Second,
		Categories:         splitList(extValue(item, nsMedia, "keywords")),
	}
	if r := extValue(item, nsMedia, "rating"); r != "" {
		ep.MaturityRatings = []string{r}
	}
	if ep.PremiumAvailableAt.IsZero() && item.PublishedParsed != nil {
		ep.PremiumAvailableAt = item.PublishedParsed.UTC()
	}
	return ep
}

func thumbnails(item *gofeed.Item) []model.Image {
	var out []model.Image
	for _, e := range item.Extensions[nsMedia]["thumbnail"] {
		src := e.Attrs["url"]
		if src == "" {
			continue
		}
		w, _ := strconv.Atoi(e.Attrs["width"])
		h, _ := strconv.Atoi(e.Attrs["height"])
		out = append(out, model.Image{Source: src, Width: w, Height: h})
	}
	return out
}

func extValue(item *gofeed.Item, ns, name string) string {
	values := item.Extensions[ns][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

func extInt(item *gofeed.Item, name string) int {
	n, _ := strconv.Atoi(extValue(item, nsCatalog, name))
	return n
}

func extTime(item *gofeed.Item, name string) time.Time {
	raw := extValue(item, nsCatalog, name)
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
