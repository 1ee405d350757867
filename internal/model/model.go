// Package model defines the domain types used across the application.
package model

import "time"

// JapaneseLocale is the audio locale of original-language (non-dubbed) releases.
const JapaneseLocale = "ja-JP"

// Episode is a catalog entry as returned by a browse request. It is transient and
// only lives for the duration of one release check.
type Episode struct {
	ID                 string
	Title              string
	SlugTitle          string
	Description        string
	SeriesID           string
	SeriesTitle        string
	SeriesSlugTitle    string
	SeasonID           string
	SeasonNumber       int
	EpisodeNumber      int
	AudioLocale        string
	IsClip             bool
	FreeAvailableAt    time.Time
	PremiumAvailableAt time.Time
	Duration           time.Duration
	Categories         []string
	MaturityRatings    []string
}

// Image is a single rendition of a series artwork.
type Image struct {
	Source string
	Width  int
	Height int
}

// Series holds the series-level data used to enrich an announcement.
type Series struct {
	ID         string
	Title      string
	SlugTitle  string
	PosterTall []Image
	PosterWide []Image
}

// Rating is the aggregate user rating of a series.
type Rating struct {
	Average string
	Total   int64
}

// AnnouncedEpisode is the persisted proof that an episode was announced.
// It is created once, right after a successful delivery, and never updated.
type AnnouncedEpisode struct {
	ID            string
	Title         string
	Description   string
	SeriesID      string
	SeriesTitle   string
	SeasonID      string
	SeasonNumber  int
	EpisodeNumber int
	AudioLocale   string
	AnnouncedAt   time.Time
}

// NewAnnouncedEpisode builds the record persisted for a delivered episode.
func NewAnnouncedEpisode(ep Episode) *AnnouncedEpisode {
	return &AnnouncedEpisode{
		ID:            ep.ID,
		Title:         ep.Title,
		Description:   ep.Description,
		SeriesID:      ep.SeriesID,
		SeriesTitle:   ep.SeriesTitle,
		SeasonID:      ep.SeasonID,
		SeasonNumber:  ep.SeasonNumber,
		EpisodeNumber: ep.EpisodeNumber,
		AudioLocale:   ep.AudioLocale,
	}
}

// User is a chat user that has interacted with the bot at least once.
type User struct {
	ID        int64
	Name      string
	Username  string
	IsAdmin   bool
	CreatedAt time.Time
}

// LinkButton is an inline button that opens a URL.
type LinkButton struct {
	Text string
	URL  string
}

// Announcement is the rendered message delivered for one episode.
type Announcement struct {
	PhotoURL string
	Caption  string
	Buttons  []LinkButton
}
