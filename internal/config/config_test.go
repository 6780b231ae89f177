package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Errorf("Expected default cache TTL 90s, got %v", cfg.CacheTTL)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("Expected default poll interval 5m, got %v", cfg.PollInterval)
	}
	if cfg.HeartbeatInterval != 20*time.Second {
		t.Errorf("Expected default heartbeat interval 20s, got %v", cfg.HeartbeatInterval)
	}
	if cfg.MaxArticles != 75 {
		t.Errorf("Expected default max articles 75, got %d", cfg.MaxArticles)
	}
	if cfg.MaxGeoPoints != 250 {
		t.Errorf("Expected default max geo points 250, got %d", cfg.MaxGeoPoints)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("Expected default retry attempts 3, got %d", cfg.RetryAttempts)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("RETRY_ATTEMPTS", "5")
	t.Setenv("ENABLE_SWAGGER", "false")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Port)
	}
	if cfg.CacheTTL != 2*time.Minute {
		t.Errorf("Expected cache TTL 2m, got %v", cfg.CacheTTL)
	}
	if cfg.RetryAttempts != 5 {
		t.Errorf("Expected retry attempts 5, got %d", cfg.RetryAttempts)
	}
	if cfg.EnableSwagger {
		t.Error("Expected swagger to be disabled")
	}
}

func TestLoad_DefaultProfiles(t *testing.T) {
	cfg := Load()

	if len(cfg.Profiles) != 3 {
		t.Fatalf("Expected 3 default profiles, got %d", len(cfg.Profiles))
	}

	if cfg.Profiles[0].Name != "World Breaking" {
		t.Errorf("Expected first default profile 'World Breaking', got '%s'", cfg.Profiles[0].Name)
	}
	if cfg.Profiles[2].Timespan != "7d" {
		t.Errorf("Expected Cyber profile timespan '7d', got '%s'", cfg.Profiles[2].Timespan)
	}
}

func TestLoad_ProfilesFromEnv(t *testing.T) {
	t.Setenv("PROFILE_ENERGY_CRISIS", "blackout OR outage|6h")

	cfg := Load()

	if len(cfg.Profiles) != 1 {
		t.Fatalf("Expected 1 profile from env, got %d", len(cfg.Profiles))
	}

	profile := cfg.Profiles[0]
	if profile.Name != "energy crisis" {
		t.Errorf("Expected profile name 'energy crisis', got '%s'", profile.Name)
	}
	if profile.Query != "blackout OR outage" {
		t.Errorf("Expected query 'blackout OR outage', got '%s'", profile.Query)
	}
	if profile.Timespan != "6h" {
		t.Errorf("Expected timespan '6h', got '%s'", profile.Timespan)
	}
}

func TestParseProfileValue(t *testing.T) {
	query, timespan := parseProfileValue("flood OR storm|1h")
	if query != "flood OR storm" || timespan != "1h" {
		t.Errorf("Unexpected parse result: query='%s' timespan='%s'", query, timespan)
	}

	// Missing timespan falls back to the default window
	query, timespan = parseProfileValue("flood OR storm")
	if query != "flood OR storm" || timespan != "24h" {
		t.Errorf("Unexpected parse result: query='%s' timespan='%s'", query, timespan)
	}

	// Invalid timespan falls back too
	_, timespan = parseProfileValue("flood|2weeks")
	if timespan != "24h" {
		t.Errorf("Expected invalid timespan to fall back to 24h, got '%s'", timespan)
	}
}
