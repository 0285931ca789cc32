package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/AI-Stratov/yadi-lp-bot/internal/bot"
	"github.com/AI-Stratov/yadi-lp-bot/internal/config"
	"github.com/AI-Stratov/yadi-lp-bot/internal/crawler"
	"github.com/AI-Stratov/yadi-lp-bot/internal/delivery"
	"github.com/AI-Stratov/yadi-lp-bot/internal/disk"
	"github.com/AI-Stratov/yadi-lp-bot/internal/matcher"
	"github.com/AI-Stratov/yadi-lp-bot/internal/stats"
	"github.com/AI-Stratov/yadi-lp-bot/internal/storage"
)

const statsInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	sender, err := bot.New(cfg.TelegramBotToken, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	lister := disk.New(http.DefaultClient, cfg.PublicRootURL)
	lister.SetTimeout(cfg.HTTPTimeout)

	crawl := crawler.New(store, lister, log, cfg.CrawlInterval)
	match := matcher.New(store, store, log, cfg.QueueInterval)
	deliver := delivery.New(store, sender, log, cfg.DeliveryInterval)
	statsSvc := stats.New(store, cfg.PublicRootURL, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting notification pipeline",
		"crawl_interval", cfg.CrawlInterval,
		"queue_interval", cfg.QueueInterval,
		"delivery_interval", cfg.DeliveryInterval,
	)

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){
		crawl.Run,
		match.Run,
		deliver.Run,
		func(ctx context.Context) { logStats(ctx, statsSvc, log) },
	} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	<-ctx.Done()

	// Let in-flight passes finish, but only for so long.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		log.Warn("shutdown wait timed out")
	}

	log.Info("bot stopped")
}

func logStats(ctx context.Context, svc *stats.Service, log *slog.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := svc.Build(ctx)
			if err != nil {
				log.Error("build stats snapshot", "error", err)
				continue
			}
			log.Info("pipeline snapshot",
				"queue_len", snap.QueueLen,
				"scheduled_total", snap.ScheduledTotal,
				"users_total", snap.UsersTotal,
				"users_enabled", snap.UsersEnabled,
			)
		}
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
