package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studylog/internal/config"
	"studylog/internal/database"
	"studylog/internal/feed"
	"studylog/internal/github"
	"studylog/internal/pipeline"
	"studylog/internal/scheduler"
	"studylog/internal/server"
	"studylog/internal/summarizer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	publisher, err := github.New(cfg.GitHubAccessToken, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create GitHub client",
			"error", err,
			"envVar", "GITHUB_ACCESS_TOKEN")

		return
	}
	log.InfoContext(ctx, "GitHub client is initialized")

	svc, err := pipeline.NewService(
		db,
		feed.NewParser(log),
		initOpenAISummarizer(ctx, cfg.OpenAIAPIKey, log),
		publisher,
		log,
	)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create pipeline service",
			"error", err)

		return
	}
	log.InfoContext(ctx, "Pipeline service is initialized")

	if cfg.ScheduleEnabled {
		sched := scheduler.New(ctx, db, svc, log)

		if err = sched.Start(); err != nil {
			log.ErrorContext(ctx, "Failed to start scheduler",
				"error", err,
				"spec", scheduler.HourlyCheckSpec)

			return
		}
		defer sched.Stop()
		log.InfoContext(ctx, "Scheduler is started",
			"spec", scheduler.HourlyCheckSpec)
	}

	srv := server.New(cfg.ListenAddr, db, svc, log)

	go func() {
		if err := srv.Start(); err != nil {
			log.ErrorContext(ctx, "Server stopped with error",
				"error", err,
				"addr", cfg.ListenAddr)
		}
	}()
	log.InfoContext(ctx, "Server is started",
		"addr", cfg.ListenAddr)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	log.InfoContext(ctx, "Shutdown signal is received",
		"signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(ctx, "Failed to shut down server",
			"error", err)
	}

	log.InfoContext(ctx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())
}

func initOpenAISummarizer(
	ctx context.Context,
	apiKey string,
	log *slog.Logger,
) summarizer.Summarizer {
	if apiKey == "" {
		log.WarnContext(ctx, "OPENAI_API_KEY is missing so fallback will be used",
			"envVar", "OPENAI_API_KEY")

		return nil
	}

	s, err := summarizer.NewOpenAISummarizer(apiKey)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create OpenAI summarizer so fallback will be used",
			"error", err)

		return nil
	}

	log.InfoContext(ctx, "OpenAI summarizer is initialized",
		"provider", "openai")

	return s
}
