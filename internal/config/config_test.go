package config_test

import (
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/truleado/truleado-sub002/internal/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/leads")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDDIT_CLIENT_ID", "client")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Port != "8083" {
		t.Errorf("Port = %q, want 8083", cfg.Port)
	}
	if cfg.SchedulerTick != 2*time.Minute {
		t.Errorf("SchedulerTick = %s, want 2m", cfg.SchedulerTick)
	}
	if cfg.SchedulerWorkers != 5 {
		t.Errorf("SchedulerWorkers = %d, want 5", cfg.SchedulerWorkers)
	}
	if cfg.AIGate != 5 {
		t.Errorf("AIGate = %d, want 5", cfg.AIGate)
	}
	if cfg.PlatformMode != config.PlatformModeAPI {
		t.Errorf("PlatformMode = %q, want %q", cfg.PlatformMode, config.PlatformModeAPI)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	if _, err := config.Load(); err == nil {
		t.Error("Load() without DATABASE_URL expected error, got nil")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/leads")
	t.Setenv("REDIS_URL", "")
	if _, err := config.Load(); err == nil {
		t.Error("Load() without REDIS_URL expected error, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"SCHEDULER_WORKERS": "0",
		"SCHEDULER_TICK":    "soon",
		"AI_GATE":           "11",
		"JOB_BUDGET":        "-1m",
		"PLATFORM_MODE":     "scrape",
		"LOG_LEVEL":         "loud",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, val)
			if _, err := config.Load(); err == nil {
				t.Errorf("Load() with %s=%q expected error, got nil", key, val)
			}
		})
	}
}

func TestLoad_FeedModeNeedsNoClientID(t *testing.T) {
	setRequired(t)
	t.Setenv("REDDIT_CLIENT_ID", "")
	t.Setenv("PLATFORM_MODE", config.PlatformModeFeed)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.PlatformMode != config.PlatformModeFeed {
		t.Errorf("PlatformMode = %q, want feed", cfg.PlatformMode)
	}
}

func TestLoad_ExcludeKeywordsAndLogLevel(t *testing.T) {
	cases := []struct {
		name string
		env  string
		want []string
	}{
		{"default", "", []string{"[hiring]", "[for hire]"}},
		{"custom", " crypto , ,nsfw ", []string{"crypto", "nsfw"}},
		{"disabled", "-", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("EXCLUDE_KEYWORDS", tc.env)
			t.Setenv("LOG_LEVEL", "debug")

			cfg, err := config.Load()
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(cfg.ExcludeKeywords, tc.want) {
				t.Errorf("ExcludeKeywords = %q, want %q", cfg.ExcludeKeywords, tc.want)
			}
			if cfg.LogLevel != slog.LevelDebug {
				t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
			}
		})
	}
}
