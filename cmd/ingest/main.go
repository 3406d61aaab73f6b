package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jobscout/ingest/internal/config"
	"github.com/jobscout/ingest/internal/core"
	"github.com/jobscout/ingest/internal/dedupe"
	"github.com/jobscout/ingest/internal/observability/otelx"
	"github.com/jobscout/ingest/internal/ratelimit"
	"github.com/jobscout/ingest/internal/runner"
	"github.com/jobscout/ingest/internal/sources/jobfeed/impl"
	"github.com/jobscout/ingest/internal/trigger"
)

func main() {
	env := config.LoadEnv()
	configPath := flag.String("config", env.ConfigPath, "path to ingest document")
	runOnce := flag.Bool("run-once", env.RunOnce, "run once and exit")
	allowPartial := flag.Bool("allow-partial", env.AllowPartialSourceErrors, "continue if a source fails")
	flag.Parse()

	logger := newLogger(env.Log)
	slog.SetDefault(logger)

	doc, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load document: %v", err)
	}
	pipeline, err := doc.Pipeline(env.Feed.HTTPTimeout)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = core.WithLogger(ctx, logger)

	shutdown, err := otelx.Init(ctx, logger, env.OTel)
	if err != nil {
		log.Fatalf("failed to init otel: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("otel shutdown failed", "error", err)
		}
	}()

	store, err := newStore(env.Dedupe)
	if err != nil {
		log.Fatalf("failed to open dedupe store: %v", err)
	}
	defer store.Close()

	limits := ratelimit.NewRegistry(doc.SourceLimits(), config.RateLimitProfiles()[config.ProfileDefault])
	fetcher := impl.NewFetcher(limits, &http.Client{}, env.Feed.UserAgent)
	r := runner.New(logger, runner.Config{
		AllowPartialSourceErrors: *allowPartial,
		MaxConcurrency:           doc.Ingest.MaxConcurrency,
	}, fetcher, store)

	if *runOnce {
		run, err := r.RunOnce(ctx, pipeline)
		if err != nil {
			logger.Error("run failed", "error", err)
			os.Exit(1)
		}
		logSummary(logger, run)
		return
	}

	if doc.Ingest.Schedule == "" {
		log.Fatalf("ingest.schedule is required unless -run-once is set")
	}
	if err := r.Start(ctx, pipeline, trigger.NewCron(doc.Ingest.Schedule, doc.Ingest.Timezone)); err != nil {
		log.Fatalf("failed to start runner: %v", err)
	}
	logger.Info("ingest scheduled", "pipeline", pipeline.Name, "schedule", doc.Ingest.Schedule, "sources", len(pipeline.Sources))

	<-ctx.Done()
	time.Sleep(200 * time.Millisecond)
}

func newLogger(cfg config.LogEnvConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newStore(cfg config.DedupeEnvConfig) (dedupe.SeenStore, error) {
	if cfg.SQLiteDSN == "" {
		return dedupe.NewMemoryStore(cfg.TTL), nil
	}
	return dedupe.NewSQLiteStore(cfg.SQLiteDSN, "", cfg.TTL)
}

func logSummary(logger *slog.Logger, run *core.Run) {
	for _, res := range run.Sources {
		attrs := []any{
			"source_id", res.SourceID,
			"fetched", res.Fetched,
			"kept", res.Kept,
			"new", res.New,
			"duration", res.Duration,
		}
		if res.Err != nil {
			attrs = append(attrs, "error", res.Err)
		}
		logger.Info("source summary", attrs...)
	}
	for _, listing := range run.Listings {
		logger.Info("new listing", "source_id", listing.SourceID, "id", listing.ID, "title", listing.Title, "url", listing.URL)
	}
}
