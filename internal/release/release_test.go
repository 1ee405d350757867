package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"release_bot/internal/catalog"
	"release_bot/internal/config"
	"release_bot/internal/model"
	"release_bot/internal/storage"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

const watchPrefix = "https://www.crunchyroll.com/watch/"

// --- mocks ---

type fakeCatalog struct {
	mu          sync.Mutex
	episodes    []model.Episode
	seriesErr   map[string]error
	browseErr   error
	langErr     error
	browseCalls []catalog.BrowseOptions
}

func (f *fakeCatalog) Browse(_ context.Context, opts catalog.BrowseOptions) ([]model.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.browseCalls = append(f.browseCalls, opts)
	if f.browseErr != nil {
		return nil, f.browseErr
	}
	if opts.Start >= len(f.episodes) {
		return nil, nil
	}
	end := min(opts.Start+opts.PageSize, len(f.episodes))
	return append([]model.Episode(nil), f.episodes[opts.Start:end]...), nil
}

func (f *fakeCatalog) Series(_ context.Context, id string) (*model.Series, error) {
	if err := f.seriesErr[id]; err != nil {
		return nil, err
	}
	return &model.Series{
		ID:         id,
		PosterTall: []model.Image{{Source: "https://img.test/" + id + ".jpg", Width: 100, Height: 150}},
	}, nil
}

func (f *fakeCatalog) Rating(_ context.Context, _ string) (*model.Rating, error) {
	return &model.Rating{Average: "4.5", Total: 1200}, nil
}

func (f *fakeCatalog) AudioLanguages(_ context.Context) (map[string]string, error) {
	if f.langErr != nil {
		return nil, f.langErr
	}
	return map[string]string{"en-US": "English"}, nil
}

type delivery struct {
	ChatID       int64
	Announcement model.Announcement
}

type mockNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
	failFor    map[string]error
}

func (m *mockNotifier) SendAnnouncement(_ context.Context, chatID int64, a model.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[episodeIDOf(a)]; err != nil {
		return err
	}
	m.deliveries = append(m.deliveries, delivery{ChatID: chatID, Announcement: a})
	return nil
}

func (m *mockNotifier) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, d := range m.deliveries {
		out = append(out, episodeIDOf(d.Announcement))
	}
	return out
}

func episodeIDOf(a model.Announcement) string {
	for _, b := range a.Buttons {
		if strings.HasPrefix(b.URL, watchPrefix) {
			return strings.TrimPrefix(b.URL, watchPrefix)
		}
	}
	return ""
}

// faultyStore injects errors into an otherwise real store.
type faultyStore struct {
	storage.Storage
	hasErr    error
	createErr error
}

func (f *faultyStore) HasEpisode(ctx context.Context, id string) (bool, error) {
	if f.hasErr != nil {
		return false, f.hasErr
	}
	return f.Storage.HasEpisode(ctx, id)
}

func (f *faultyStore) CreateEpisode(ctx context.Context, ep *model.AnnouncedEpisode) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Storage.CreateEpisode(ctx, ep)
}

// --- helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.SQL {
	t.Helper()
	s, err := storage.NewSQL(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testConfig() *config.Config {
	return &config.Config{
		ChannelID:         "-100123",
		FallbackPosterURL: "https://img.test/404.png",
	}
}

func newTestScanner(store storage.Storage, pageSize int) *Scanner {
	s := NewScanner(store, pageSize, testLogger())
	s.now = func() time.Time { return now }
	return s
}

func newTestPublisher(store storage.Storage, n Notifier, cfg *config.Config) *Publisher {
	p := NewPublisher(store, n, cfg, testLogger())
	p.now = func() time.Time { return now }
	return p
}

// episode returns a non-clip episode released at the given instants.
func episode(id string, free, premium time.Time) model.Episode {
	return model.Episode{
		ID:                 id,
		Title:              "Episode " + id,
		SeriesID:           "S" + id,
		SeriesTitle:        "Show " + id,
		SeasonID:           "SE" + id,
		SeasonNumber:       1,
		EpisodeNumber:      1,
		AudioLocale:        model.JapaneseLocale,
		FreeAvailableAt:    free,
		PremiumAvailableAt: premium,
	}
}

// releasedToday returns an episode whose premium release passed offset ago.
func releasedToday(id string, offset time.Duration) model.Episode {
	return episode(id, now.Add(7*24*time.Hour), now.Add(-offset))
}

func record(t *testing.T, store storage.Storage, id string) {
	t.Helper()
	if err := store.CreateEpisode(context.Background(), &model.AnnouncedEpisode{ID: id}); err != nil {
		t.Fatalf("record %s: %v", id, err)
	}
}

func requireRecorded(t *testing.T, store storage.Storage, id string, want bool) {
	t.Helper()
	got, err := store.HasEpisode(context.Background(), id)
	if err != nil {
		t.Fatalf("has episode %s: %v", id, err)
	}
	if got != want {
		t.Errorf("episode %s recorded = %v, want %v", id, got, want)
	}
}

func manyReleased(n int) []model.Episode {
	eps := make([]model.Episode, n)
	for i := range eps {
		eps[i] = releasedToday(fmt.Sprintf("E%03d", i), time.Minute)
	}
	return eps
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("missing %q in:\n%s", want, got)
	}
}

var errBoom = errors.New("boom")
