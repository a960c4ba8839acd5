// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or malformed, the process exits.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Platform search modes.
const (
	PlatformModeAPI  = "api"  // authenticated search with each owner's credential
	PlatformModeFeed = "feed" // public per-community search feed, no credential
)

// Config holds all runtime configuration for the lead engine.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	SchedulerTick      time.Duration // How often the cron job fires
	SchedulerWorkers   int           // Max concurrent job executions
	JobBudget          time.Duration // Hard wall-clock limit per execution
	JobIntervalMinutes int           // Interval for newly created jobs

	AIGate int // Minimum heuristic score before AI scoring

	SearchLimit   int
	SearchSort    string
	SearchWindow  string
	SearchTimeout time.Duration
	PlatformMode  string

	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string

	AIAPIURL  string
	AIAPIKey  string
	AIModel   string
	AITimeout time.Duration

	AdhocMonthlyLimit int

	ExcludeKeywords []string // posts mentioning any of these are dropped before scoring
	LogLevel        slog.Level
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg := &Config{
		Port:               envOr("ENGINE_PORT", "8083"),
		DatabaseURL:        dbURL,
		RedisURL:           redisURL,
		SearchSort:         envOr("SEARCH_SORT", "new"),
		SearchWindow:       envOr("SEARCH_WINDOW", "week"),
		PlatformMode:       envOr("PLATFORM_MODE", PlatformModeAPI),
		RedditClientID:     os.Getenv("REDDIT_CLIENT_ID"),
		RedditClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
		RedditUserAgent:    envOr("REDDIT_USER_AGENT", "lead-engine/1.0"),
		AIAPIURL:           envOr("AI_API_URL", "https://api.openai.com/v1/chat/completions"),
		AIAPIKey:           os.Getenv("AI_API_KEY"),
		AIModel:            envOr("AI_MODEL", "gpt-4o-mini"),
		ExcludeKeywords:    envList("EXCLUDE_KEYWORDS", "[hiring],[for hire]"),
	}

	var err error
	if cfg.SchedulerTick, err = envDuration("SCHEDULER_TICK", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JobBudget, err = envDuration("JOB_BUDGET", 3*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SearchTimeout, err = envDuration("SEARCH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.AITimeout, err = envDuration("AI_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SchedulerWorkers, err = envPositiveInt("SCHEDULER_WORKERS", 5); err != nil {
		return nil, err
	}
	if cfg.JobIntervalMinutes, err = envPositiveInt("JOB_INTERVAL_MINUTES", 60); err != nil {
		return nil, err
	}
	if cfg.AIGate, err = envPositiveInt("AI_GATE", 5); err != nil {
		return nil, err
	}
	if cfg.AIGate > 10 {
		return nil, fmt.Errorf("AI_GATE must be between 1 and 10, got %d", cfg.AIGate)
	}
	if cfg.SearchLimit, err = envPositiveInt("SEARCH_LIMIT", 25); err != nil {
		return nil, err
	}
	if cfg.AdhocMonthlyLimit, err = envPositiveInt("ADHOC_MONTHLY_LIMIT", 20); err != nil {
		return nil, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envOr("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	switch cfg.PlatformMode {
	case PlatformModeAPI:
		if cfg.RedditClientID == "" {
			return nil, fmt.Errorf("REDDIT_CLIENT_ID is required when PLATFORM_MODE=%s", PlatformModeAPI)
		}
	case PlatformModeFeed:
	default:
		return nil, fmt.Errorf("PLATFORM_MODE must be %q or %q, got %q", PlatformModeAPI, PlatformModeFeed, cfg.PlatformMode)
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envList splits a comma-separated variable, dropping blanks. Setting the
// variable to "-" yields an empty list.
func envList(key, def string) []string {
	s := envOr(key, def)
	if s == "-" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envPositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, s)
	}
	return d, nil
}
