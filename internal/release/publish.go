package release

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"release_bot/internal/bot"
	"release_bot/internal/catalog"
	"release_bot/internal/config"
	"release_bot/internal/filter"
	"release_bot/internal/model"
	"release_bot/internal/storage"
)

// Notifier delivers an announcement to a chat.
type Notifier interface {
	SendAnnouncement(ctx context.Context, chatID int64, a model.Announcement) error
}

// Status is the result of publishing one candidate.
type Status string

// Publish statuses.
const (
	StatusPublished       Status = "published"
	StatusAlreadyRecorded Status = "already_recorded"
	StatusNotAvailable    Status = "not_available"
	StatusCancelled       Status = "cancelled"
	StatusFailed          Status = "failed"
)

// Outcome describes what happened to one candidate.
type Outcome struct {
	EpisodeID string
	Status    Status
	Err       error
}

// Publisher announces candidates one at a time and records each delivered
// episode before moving on.
type Publisher struct {
	store    storage.Storage
	notifier Notifier
	cfg      *config.Config
	log      *slog.Logger
	delay    time.Duration
	now      func() time.Time
}

// NewPublisher creates a Publisher that waits cfg.PublishDelay before each
// delivery.
func NewPublisher(store storage.Storage, notifier Notifier, cfg *config.Config, log *slog.Logger) *Publisher {
	return &Publisher{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		delay:    cfg.PublishDelay,
		now:      time.Now,
	}
}

// PublishAll announces candidates in order of effective availability time.
//
// A candidate that fails is logged and left unrecorded so the next cycle picks
// it up again; the remaining candidates are still processed. Cancelling ctx
// stops after the current candidate without recording anything undelivered.
func (p *Publisher) PublishAll(ctx context.Context, client catalog.Client, candidates []model.Episode) []Outcome {
	if len(candidates) == 0 {
		return nil
	}

	now := p.now()
	ordered := make([]model.Episode, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return filter.EffectiveTime(ordered[i], now).Before(filter.EffectiveTime(ordered[j], now))
	})

	languages, err := client.AudioLanguages(ctx)
	if err != nil {
		p.log.Warn("fetch audio languages", "error", err)
		languages = map[string]string{}
	}

	outcomes := make([]Outcome, 0, len(ordered))
	for _, ep := range ordered {
		if ctx.Err() != nil {
			break
		}
		out := p.publish(ctx, client, ep, languages)
		outcomes = append(outcomes, out)

		switch out.Status {
		case StatusPublished:
			p.log.Info("episode announced", "episode_id", ep.ID, "series_id", ep.SeriesID, "series", ep.SeriesTitle)
		case StatusFailed:
			p.log.Error("publish episode", "episode_id", ep.ID, "series_id", ep.SeriesID, "error", out.Err)
		case StatusCancelled:
			p.log.Info("publishing interrupted", "episode_id", ep.ID)
		default:
			p.log.Debug("episode skipped", "episode_id", ep.ID, "status", string(out.Status))
		}
	}
	return outcomes
}

func (p *Publisher) publish(ctx context.Context, client catalog.Client, ep model.Episode, languages map[string]string) Outcome {
	fail := func(stage string, err error) Outcome {
		return Outcome{EpisodeID: ep.ID, Status: StatusFailed, Err: &PublishError{EpisodeID: ep.ID, Stage: stage, Cause: err}}
	}

	if !filter.Available(ep, p.now()) {
		return Outcome{EpisodeID: ep.ID, Status: StatusNotAvailable}
	}

	if err := sleep(ctx, p.delay); err != nil {
		return Outcome{EpisodeID: ep.ID, Status: StatusCancelled, Err: err}
	}

	// Another process sharing the store may have announced it since the scan.
	announced, err := p.store.HasEpisode(ctx, ep.ID)
	if err != nil {
		return fail(StageLookup, err)
	}
	if announced {
		return Outcome{EpisodeID: ep.ID, Status: StatusAlreadyRecorded}
	}

	series, err := client.Series(ctx, ep.SeriesID)
	if err != nil {
		return fail(StageEnrich, err)
	}
	rating, err := client.Rating(ctx, ep.SeriesID)
	if err != nil {
		return fail(StageEnrich, err)
	}

	a := model.Announcement{
		PhotoURL: bot.PosterURL(series, p.cfg.FallbackPosterURL),
		Caption:  bot.FormatAnnouncement(ep, *rating, languages),
		Buttons:  bot.AnnouncementButtons(ep),
	}

	chatID, err := p.cfg.Destination()
	if err != nil {
		return fail(StageDestination, err)
	}

	if err := p.notifier.SendAnnouncement(ctx, chatID, a); err != nil {
		return fail(StageDeliver, err)
	}

	// Recording must not be cut short by shutdown once delivery succeeded.
	rec := model.NewAnnouncedEpisode(ep)
	rec.AnnouncedAt = p.now().UTC().Truncate(time.Second)
	if err := p.store.CreateEpisode(context.WithoutCancel(ctx), rec); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			p.log.Warn("episode already recorded after delivery", "episode_id", ep.ID)
			return Outcome{EpisodeID: ep.ID, Status: StatusPublished}
		}
		return fail(StageRecord, err)
	}
	return Outcome{EpisodeID: ep.ID, Status: StatusPublished}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
