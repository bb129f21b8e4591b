// Package main implements the TMP Murcia bus alert notifier: a Telegram bot
// that scrapes the transit authority's news page, deduplicates alerts against
// persisted history and fans genuinely new ones out to subscribed chats.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	tele "gopkg.in/telebot.v4"

	"tmpmurcia-notifier/bot"
	"tmpmurcia-notifier/notify"
	"tmpmurcia-notifier/poll"
	"tmpmurcia-notifier/scraper"
	"tmpmurcia-notifier/server"
	"tmpmurcia-notifier/storage"
	"tmpmurcia-notifier/subscription"
)

const (
	defaultSchedule   = "*/15 * * * *"
	defaultPort       = "8080"
	checkTimeout      = 5 * time.Minute
	pollTimeout       = 10 * time.Second
	httpClientTimeout = 30 * time.Second
)

type config struct {
	token     string
	bucket    string
	localPath string
	pageURL   string
	schedule  string
	port      string
	mock      bool
}

func loadConfig(logger *slog.Logger) config {
	cfg := config{
		token:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		bucket:    os.Getenv("STORAGE_BUCKET"),
		localPath: os.Getenv("LOCAL_STORAGE"),
		pageURL:   os.Getenv("TMP_URL"),
		schedule:  os.Getenv("CHECK_SCHEDULE"),
		port:      os.Getenv("PORT"),
		mock:      os.Getenv("MOCK_TELEGRAM") == "true",
	}

	if cfg.schedule == "" {
		cfg.schedule = defaultSchedule
	}
	if cfg.port == "" {
		cfg.port = defaultPort
	}
	if cfg.bucket == "" && cfg.localPath == "" {
		cfg.localPath = "./data"
		logger.Info("No STORAGE_BUCKET set, defaulting to local storage", "storage_path", cfg.localPath)
	}
	if cfg.token == "" && !cfg.mock {
		cfg.mock = true
		logger.Info("No TELEGRAM_BOT_TOKEN set, running with mock transport")
	}
	return cfg
}

func main() {
	checkOnce := flag.Bool("check", false, "run one alert check and exit (non-zero on a fatal run)")
	flag.Parse()

	// Optional .env for local development; absence is fine
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := loadConfig(logger)

	if cfg.localPath != "" {
		if err := os.MkdirAll(cfg.localPath, 0o755); err != nil {
			logger.Error("Failed to create local storage directory", "path", cfg.localPath, "error", err)
			os.Exit(1)
		}
	}

	var client *gcs.Client
	if cfg.localPath == "" {
		var err error
		client, err = gcs.NewClient(ctx)
		if err != nil {
			logger.Error("Failed to initialize Storage client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
	}

	store := storage.New(client, cfg.bucket, cfg.localPath, logger)
	subs := subscription.NewManager(store, logger)

	var tb *tele.Bot
	if !cfg.mock {
		var err error
		tb, err = tele.NewBot(tele.Settings{
			Token: cfg.token,
			Poller: &bot.PersistedPoller{
				Store:   store,
				Timeout: pollTimeout,
				Logger:  logger,
			},
			Client: &http.Client{Timeout: httpClientTimeout},
			OnError: func(err error, c tele.Context) {
				// A failing handler must never stall the update loop
				if c != nil && c.Chat() != nil {
					logger.Error("Update handler failed", "chat_id", c.Chat().ID, "error", err)
					return
				}
				logger.Error("Update handler failed", "error", err)
			},
		})
		if err != nil {
			logger.Error("Failed to initialize Telegram bot", "error", err)
			os.Exit(1)
		}
	}

	sender := notify.NewTelegramSender(tb, cfg.mock, logger)
	dispatcher := notify.New(sender, logger)
	scr := scraper.New(&http.Client{Timeout: httpClientTimeout}, cfg.pageURL, logger)
	monitor := poll.New(scr, subs, store, dispatcher, logger)

	if *checkOnce {
		runCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if err := monitor.Check(runCtx); err != nil {
			logger.Error("Alert check failed", "error", err)
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.schedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		if err := monitor.Check(runCtx); err != nil {
			logger.Error("Scheduled alert check failed", "error", err)
		}
	}); err != nil {
		logger.Error("Invalid check schedule", "schedule", cfg.schedule, "error", err)
		os.Exit(1)
	}
	c.Start()
	logger.Info("Alert check scheduled", "schedule", cfg.schedule)

	if tb != nil {
		commandBot := bot.New(tb, subs, logger)
		go commandBot.Start()
		defer commandBot.Stop()
	}

	srv := server.New(monitor, subs, logger)
	if err := srv.ListenAndServe(cfg.port); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
