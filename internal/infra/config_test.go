package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("WORKER_COUNT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.TextProvider != "openai" {
		t.Fatalf("TextProvider = %q, want openai", cfg.TextProvider)
	}
	if cfg.WorkerCount != 4 {
		t.Fatalf("WorkerCount = %d, want 4", cfg.WorkerCount)
	}
	if cfg.ContentCacheTTL != 7*24*time.Hour {
		t.Fatalf("ContentCacheTTL = %v, want 168h", cfg.ContentCacheTTL)
	}
	if cfg.MaxWalkTotalMeters != 2000 {
		t.Fatalf("MaxWalkTotalMeters = %v, want 2000", cfg.MaxWalkTotalMeters)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestLoadConfigClampsStops(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MIN_STOPS", "6")
	t.Setenv("MAX_STOPS", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxStops < cfg.MinStops {
		t.Fatalf("MaxStops %d below MinStops %d", cfg.MaxStops, cfg.MinStops)
	}
}
