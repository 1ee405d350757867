package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"release_bot/internal/catalog"
	"release_bot/internal/config"
	"release_bot/internal/metrics"
	"release_bot/internal/model"
	"release_bot/internal/release"
	"release_bot/internal/storage"
)

var errBoom = errors.New("boom")

type mockCatalog struct {
	mu        sync.Mutex
	episodes  []model.Episode
	browseErr error
	browsed   int
}

func (m *mockCatalog) Browse(_ context.Context, opts catalog.BrowseOptions) ([]model.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.browsed++
	if m.browseErr != nil {
		return nil, m.browseErr
	}
	if opts.Start >= len(m.episodes) {
		return nil, nil
	}
	return m.episodes[opts.Start:min(opts.Start+opts.PageSize, len(m.episodes))], nil
}

func (m *mockCatalog) Series(_ context.Context, id string) (*model.Series, error) {
	return &model.Series{ID: id}, nil
}

func (m *mockCatalog) Rating(_ context.Context, _ string) (*model.Rating, error) {
	return &model.Rating{}, nil
}

func (m *mockCatalog) AudioLanguages(_ context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

type mockConnector struct {
	mu       sync.Mutex
	client   *mockCatalog
	err      error
	connects int
}

func (m *mockConnector) Connect(_ context.Context) (catalog.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.err != nil {
		return nil, m.err
	}
	return m.client, nil
}

func (m *mockConnector) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []model.Announcement
}

func (m *mockNotifier) SendAnnouncement(_ context.Context, _ int64, a model.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, a)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	store     *storage.SQL
	connector *mockConnector
	notifier  *mockNotifier
	metrics   *metrics.Metrics
	sched     *Scheduler
}

func newFixture(t *testing.T, connector *mockConnector) *fixture {
	t.Helper()
	store, err := storage.NewSQL(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{ChannelID: "-100123", FallbackPosterURL: "https://img.test/404.png"}
	notifier := &mockNotifier{}
	m := metrics.New(prometheus.NewRegistry())

	sched := New(
		connector,
		release.NewScanner(store, 100, log),
		release.NewPublisher(store, notifier, cfg, log),
		m,
		log,
	)
	return &fixture{store: store, connector: connector, notifier: notifier, metrics: m, sched: sched}
}

// releasedEpisode returns an episode whose premium release happened earlier today.
func releasedEpisode(id string) model.Episode {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return model.Episode{
		ID:                 id,
		Title:              "Episode " + id,
		SeriesID:           "S" + id,
		SeriesTitle:        "Show " + id,
		AudioLocale:        model.JapaneseLocale,
		FreeAvailableAt:    today.Add(7 * 24 * time.Hour),
		PremiumAvailableAt: today,
	}
}

func TestRunCycleAnnouncesReleases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &mockConnector{client: &mockCatalog{episodes: []model.Episode{
		releasedEpisode("E1"),
		releasedEpisode("E2"),
	}}})

	f.sched.runCycle(ctx)

	if diff := cmp.Diff(2, f.notifier.count()); diff != "" {
		t.Errorf("delivery count mismatch (-want +got):\n%s", diff)
	}
	for _, id := range []string{"E1", "E2"} {
		ok, err := f.store.HasEpisode(ctx, id)
		if err != nil {
			t.Fatalf("has episode: %v", err)
		}
		if !ok {
			t.Errorf("episode %s not recorded", id)
		}
	}

	got := map[string]float64{
		"ok":         testutil.ToFloat64(f.metrics.Cycles.WithLabelValues(metrics.ResultOK)),
		"candidates": testutil.ToFloat64(f.metrics.Candidates),
		"published":  testutil.ToFloat64(f.metrics.Announcements.WithLabelValues(string(release.StatusPublished))),
	}
	want := map[string]float64{"ok": 1, "candidates": 2, "published": 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCycleFailures(t *testing.T) {
	tests := []struct {
		name        string
		connector   *mockConnector
		wantResult  string
		wantBrowsed int
	}{
		{
			name:        "connect failure ends the cycle",
			connector:   &mockConnector{client: &mockCatalog{}, err: errBoom},
			wantResult:  metrics.ResultConnectError,
			wantBrowsed: 0,
		},
		{
			name:        "scan failure ends the cycle",
			connector:   &mockConnector{client: &mockCatalog{browseErr: errBoom}},
			wantResult:  metrics.ResultScanError,
			wantBrowsed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.connector)

			f.sched.runCycle(context.Background())

			if diff := cmp.Diff(0, f.notifier.count()); diff != "" {
				t.Errorf("delivery count mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantBrowsed, tt.connector.client.browsed); diff != "" {
				t.Errorf("browse count mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues(tt.wantResult))); diff != "" {
				t.Errorf("cycle result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCyclesAnnounceOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &mockConnector{client: &mockCatalog{episodes: []model.Episode{releasedEpisode("E1")}}})

	f.sched.runCycle(ctx)
	f.sched.runCycle(ctx)

	if diff := cmp.Diff(1, f.notifier.count()); diff != "" {
		t.Errorf("delivery count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, f.connector.count()); diff != "" {
		t.Errorf("each cycle must connect afresh (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0.0, testutil.ToFloat64(f.metrics.Candidates)); diff != "" {
		t.Errorf("second cycle candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, &mockConnector{client: &mockCatalog{}})
	f.sched.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sched.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for f.connector.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("scheduler did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
