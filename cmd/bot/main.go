package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mixelka/chatmirror/internal/channels"
	"github.com/mixelka/chatmirror/internal/config"
	"github.com/mixelka/chatmirror/internal/database"
	"github.com/mixelka/chatmirror/internal/dispatch"
	"github.com/mixelka/chatmirror/internal/formatter"
	"github.com/mixelka/chatmirror/internal/jobs"
	"github.com/mixelka/chatmirror/internal/parser"
	"github.com/mixelka/chatmirror/internal/tasks"
	"github.com/mixelka/chatmirror/internal/telegram"
	"github.com/mixelka/chatmirror/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting chat mirror bot")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run migrations
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Create components
	registry, err := channels.NewRegistry(cfg.Pool())
	if err != nil {
		logger.Error("invalid channel configuration", "error", err)
		os.Exit(1)
	}
	telemetry.Init()

	allocator := channels.NewAllocator(db, registry)
	dispatcher := dispatch.New(tasks.NewRegistry[int64](logger), cfg.AccountQueueSize, logger)
	tgFormatter := formatter.NewTelegramFormatter(cfg.Location())

	// Create bot
	bot, err := telegram.NewBot(telegram.BotDeps{
		Config:     cfg,
		DB:         db,
		Channels:   registry,
		Allocator:  allocator,
		Dispatcher: dispatcher,
		HTMLParser: parser.NewHTMLParser(),
		Formatter:  tgFormatter,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Background jobs
	scheduler := jobs.NewScheduler(tasks.NewRegistry[string](logger), logger)
	jobDeps := jobs.Deps{Store: db, Notifier: bot, Texts: tgFormatter, Logger: logger}
	scheduler.Schedule(jobs.ExpirySweep(jobDeps, cfg.ExpirySweepInterval))
	scheduler.Schedule(jobs.InactivityReminder(jobDeps, cfg.InactivityCheckInterval, cfg.InactivityThreshold))

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsEnabled() {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Start bot
	g.Go(func() error {
		logger.Info("bot is running, press Ctrl+C to stop")
		bot.Start(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service failed", "error", err)
	}

	logger.Info("shutting down...")
	scheduler.Stop()
	dispatcher.Shutdown()
	logger.Info("bot stopped")
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
