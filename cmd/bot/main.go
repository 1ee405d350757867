package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"release_bot/internal/bot"
	"release_bot/internal/catalog"
	"release_bot/internal/catalog/crunchyroll"
	"release_bot/internal/catalog/feed"
	"release_bot/internal/config"
	"release_bot/internal/metrics"
	"release_bot/internal/release"
	"release_bot/internal/scheduler"
	"release_bot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if storage.DialectFor(cfg.DatabaseURL) == storage.DialectSQLite {
		if dir := filepath.Dir(cfg.DatabaseURL); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				log.Error("create data directory", "path", dir, "error", err)
				os.Exit(1)
			}
		}
	}

	store, err := storage.NewSQL(cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "dialect", storage.DialectFor(cfg.DatabaseURL), "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	var connector catalog.Connector
	if cfg.CatalogFeedURL != "" {
		log.Info("using catalog feed", "url", cfg.CatalogFeedURL)
		connector = feed.NewConnector(httpClient, cfg.CatalogFeedURL)
	} else {
		connector = crunchyroll.NewConnector(cfg, httpClient, log)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	sched := scheduler.New(
		connector,
		release.NewScanner(store, cfg.PageSize, log),
		release.NewPublisher(store, b, cfg, log),
		m,
		log,
	)
	sched.SetTickInterval(cfg.PollInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, log)
	}

	log.Info("starting bot", "poll_interval", cfg.PollInterval, "page_size", cfg.PageSize)

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}

func serveMetrics(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
