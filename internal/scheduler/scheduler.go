package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"release_bot/internal/catalog"
	"release_bot/internal/metrics"
	"release_bot/internal/release"
)

// Scheduler periodically checks the catalog for new releases and announces them.
type Scheduler struct {
	connector catalog.Connector
	scanner   *release.Scanner
	publisher *release.Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger
	tick      time.Duration
}

// New creates a Scheduler with a 1-minute check interval.
func New(connector catalog.Connector, scanner *release.Scanner, publisher *release.Publisher, m *metrics.Metrics, log *slog.Logger) *Scheduler {
	return &Scheduler{
		connector: connector,
		scanner:   scanner,
		publisher: publisher,
		metrics:   m,
		log:       log,
		tick:      1 * time.Minute,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
// Ticks that fire while a cycle is running are dropped.
func (s *Scheduler) Run(ctx context.Context) {
	s.runCycle(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	start := time.Now()

	client, err := s.connector.Connect(ctx)
	if err != nil {
		s.log.Error("connect to catalog", "error", err)
		s.metrics.ObserveCycle(metrics.ResultConnectError, time.Since(start))
		return
	}

	candidates, err := s.scanner.Scan(ctx, client)
	if err != nil {
		var scanErr *release.ScanError
		if errors.As(err, &scanErr) {
			s.log.Error("scan catalog", "stage", scanErr.Stage, "error", scanErr.Cause)
		} else {
			s.log.Error("scan catalog", "error", err)
		}
		s.metrics.ObserveCycle(metrics.ResultScanError, time.Since(start))
		return
	}
	s.metrics.SetCandidates(len(candidates))

	published := 0
	for _, out := range s.publisher.PublishAll(ctx, client, candidates) {
		s.metrics.ObserveOutcome(string(out.Status))
		if out.Status == release.StatusPublished {
			published++
		}
	}

	s.metrics.ObserveCycle(metrics.ResultOK, time.Since(start))
	if len(candidates) > 0 {
		s.log.Info("release check finished", "candidates", len(candidates), "published", published, "duration", time.Since(start))
	} else {
		s.log.Debug("release check finished", "candidates", 0, "duration", time.Since(start))
	}
}
