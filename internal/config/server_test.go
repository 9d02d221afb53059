package config

import "testing"

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/arena?sslmode=disable")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.MovePaceMS != 1500 {
		t.Fatalf("MovePaceMS = %d, want 1500", cfg.MovePaceMS)
	}
	if cfg.RateLimitSnoozeMins != 10 {
		t.Fatalf("RateLimitSnoozeMins = %d, want 10", cfg.RateLimitSnoozeMins)
	}
	if cfg.HeartbeatSeconds != 30 {
		t.Fatalf("HeartbeatSeconds = %d, want 30", cfg.HeartbeatSeconds)
	}
}

func TestLoadServerRequiresPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	_, err := LoadServer()
	if err == nil {
		t.Fatal("LoadServer() expected error, got nil")
	}
}

func TestLoadServerParseTypes(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/arena?sslmode=disable")
	t.Setenv("MOVE_PACE_MS", "250")
	t.Setenv("RATE_LIMIT_SNOOZE_MINUTES", "5")
	t.Setenv("LLM_BASE_URL", "http://localhost:9999/v1")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.MovePaceMS != 250 {
		t.Fatalf("MovePaceMS = %d, want 250", cfg.MovePaceMS)
	}
	if cfg.RateLimitSnoozeMins != 5 {
		t.Fatalf("RateLimitSnoozeMins = %d, want 5", cfg.RateLimitSnoozeMins)
	}
	if cfg.LLMBaseURL != "http://localhost:9999/v1" {
		t.Fatalf("LLMBaseURL = %q", cfg.LLMBaseURL)
	}
}
