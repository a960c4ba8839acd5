// lead-engine
//
// Finds, scores and stores Reddit posts that look like sales leads for a
// user's product. Runs three things in one process:
//   - a scheduler that claims due monitoring jobs and runs discovery
//   - an HTTP API for monitoring control, manual runs and ad-hoc searches
//   - engine health reporting backed by Redis
//
// Publishes EVENT_LEADS_DISCOVERED / EVENT_JOB_FAILED to Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/truleado/truleado-sub002/internal/adhoc"
	"github.com/truleado/truleado-sub002/internal/config"
	"github.com/truleado/truleado-sub002/internal/db"
	"github.com/truleado/truleado-sub002/internal/discovery"
	"github.com/truleado/truleado-sub002/internal/events"
	"github.com/truleado/truleado-sub002/internal/httpapi"
	"github.com/truleado/truleado-sub002/internal/jobs"
	"github.com/truleado/truleado-sub002/internal/leads"
	"github.com/truleado/truleado-sub002/internal/platform"
	"github.com/truleado/truleado-sub002/internal/products"
	"github.com/truleado/truleado-sub002/internal/scheduler"
	"github.com/truleado/truleado-sub002/internal/scoring"
)

const version = "1.0.0"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With("service", "lead-engine")
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	logger.Info("connecting to postgres")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, int32(cfg.SchedulerWorkers*2+4))
	if err != nil {
		fatal(logger, "postgres", err)
	}
	defer pool.Close()
	if err := db.ApplySchema(ctx, pool); err != nil {
		fatal(logger, "postgres schema", err)
	}
	logger.Info("postgres connected")

	// ── Redis ────────────────────────────────────────────────────────────────
	logger.Info("connecting to redis")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "lead-engine")
	if err != nil {
		fatal(logger, "redis", err)
	}
	defer rdb.Close()
	logger.Info("redis connected")

	// ── Discovery ────────────────────────────────────────────────────────────
	var searcher platform.Searcher
	switch cfg.PlatformMode {
	case config.PlatformModeFeed:
		searcher = platform.NewFeedSearcher("", cfg.RedditUserAgent, cfg.SearchTimeout)
	default:
		searcher = platform.NewRedditClient(platform.RedditOptions{
			ClientID:     cfg.RedditClientID,
			ClientSecret: cfg.RedditClientSecret,
			UserAgent:    cfg.RedditUserAgent,
			Timeout:      cfg.SearchTimeout,
		}, platform.NewPostgresCredentialStore(pool), platform.NewRedisTokenCache(rdb))
	}

	var oracle scoring.Oracle
	if cfg.AIAPIKey != "" {
		oracle = scoring.NewChatOracle(cfg.AIAPIURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITimeout)
	} else {
		logger.Warn("AI_API_KEY not set, leads will be scored heuristically only")
	}
	scorer := scoring.NewScorer(oracle, cfg.AIGate, logger)

	leadStore := leads.NewPostgresStore(pool)
	pipeline := discovery.NewPipeline(searcher, scorer, leadStore, discovery.Options{
		Sort:         cfg.SearchSort,
		Window:       cfg.SearchWindow,
		Limit:        cfg.SearchLimit,
		ExcludeFlags: cfg.ExcludeKeywords,
	}, logger)

	// ── Jobs & scheduler ─────────────────────────────────────────────────────
	productStore := products.NewPostgresStore(pool)
	jobStore := jobs.NewPostgresStore(pool)
	jobService := jobs.NewService(jobStore, productStore, cfg.JobIntervalMinutes)

	exec := scheduler.NewExecutor(jobStore, productStore, pipeline,
		events.NewRedisPublisher(rdb, logger), cfg.JobBudget, logger)
	sched := scheduler.New(jobStore, exec, scheduler.NewRedisStatus(rdb, cfg.SchedulerTick), scheduler.Options{
		Tick:    cfg.SchedulerTick,
		Workers: cfg.SchedulerWorkers,
		Budget:  cfg.JobBudget,
	}, logger)
	if err := sched.Start(ctx); err != nil {
		fatal(logger, "scheduler", err)
	}

	// ── Ad-hoc search ────────────────────────────────────────────────────────
	adhocService := adhoc.NewService(
		adhoc.NewPostgresQuota(pool, cfg.AdhocMonthlyLimit),
		adhoc.KeywordParser{},
		productStore,
		pipeline,
		adhoc.NewPostgresResultStore(pool),
		logger,
	)

	// ── HTTP server ──────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(httpapi.NewHandler(httpapi.Deps{
		Jobs:    jobService,
		Runner:  sched,
		Adhoc:   adhocService,
		JobsN:   jobStore,
		LeadsN:  leadStore,
		Version: version,
		Logger:  logger,
	}))

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Manual runs and ad-hoc searches block for up to one job budget.
		WriteTimeout: cfg.JobBudget + 30*time.Second,
	}

	go func() {
		logger.Info("listening", "version", version, "port", cfg.Port, "platform", cfg.PlatformMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "http server", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.JobBudget+15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	sched.Stop(shutdownCtx)
	cancel()
	logger.Info("stopped")
}

func fatal(logger *slog.Logger, what string, err error) {
	logger.Error(what, "err", err)
	os.Exit(1)
}
