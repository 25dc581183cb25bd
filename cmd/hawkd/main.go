package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sxientrie/reddit-hawk/internal/config"
	"github.com/Sxientrie/reddit-hawk/internal/httpapi"
	"github.com/Sxientrie/reddit-hawk/internal/metrics"
	"github.com/Sxientrie/reddit-hawk/internal/model"
	"github.com/Sxientrie/reddit-hawk/internal/notify"
	"github.com/Sxientrie/reddit-hawk/internal/poller"
	"github.com/Sxientrie/reddit-hawk/internal/reddit"
	"github.com/Sxientrie/reddit-hawk/internal/store"
)

func main() {
	_ = godotenv.Load()

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

	sqlite, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlite.Close() }()
	durable := store.Watch(sqlite)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var session store.Store
	if cfg.RedisAddr != "" {
		session, err = store.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Error("connect redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
	} else {
		log.Info("no redis configured, session state kept in memory")
		session = store.NewMemory()
	}
	defer func() { _ = session.Close() }()

	client := reddit.New(
		&http.Client{Timeout: 10 * time.Second},
		cfg.RedditBaseURL, cfg.UserAgent, session, log,
	)

	var sinks []notify.Sink
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, durable)
		if err != nil {
			log.Error("create telegram sink", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, tg)
	}
	sinks = append(sinks, notify.NewWebhook(nil, func() string {
		var rules model.Ruleset
		if err := store.GetJSON(context.Background(), durable, store.KeyConfig, &rules); err != nil {
			return ""
		}
		return rules.WebhookURL
	}))
	notifier := notify.New(log, sinks...)

	timer := poller.NewDurableTimer(durable, log)
	p := poller.New(durable, session, client, notifier, timer, log)
	timer.Bind(func() { p.Poll(ctx) })

	metrics.Register(prometheus.DefaultRegisterer)

	unsubscribe := durable.Subscribe(func(key string, _ []byte) {
		if key == store.KeyConfig {
			log.Info("ruleset updated")
		}
	})
	defer unsubscribe()

	srv := httpapi.NewServer(p, durable, log)

	log.Info("starting reddit-hawk")
	p.Start(ctx)

	// Process exit deliberately skips p.Stop: the persisted trigger must
	// survive so the next process resumes the schedule.
	if err := srv.Start(ctx, cfg.ListenAddr); err != nil {
		log.Error("http server", "error", err)
		os.Exit(1)
	}

	log.Info("daemon stopped")
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
