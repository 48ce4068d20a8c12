package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 8080 || cfg.Redis.Addr() != "localhost:6379" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Worker.GenerationTimeout != 90*time.Second || cfg.Worker.RenderTimeout != 60*time.Second {
		t.Fatalf("unexpected worker defaults %+v", cfg.Worker)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("unexpected pool defaults %+v", cfg.Database)
	}
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9000")
	t.Setenv("GENERATION_TIMEOUT", "2m")
	t.Setenv("DATABASE_SLOW_QUERY", "250ms")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 9000 || cfg.Worker.GenerationTimeout != 2*time.Minute {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Database.SlowQuery != 250*time.Millisecond {
		t.Fatalf("slow query threshold not applied: %v", cfg.Database.SlowQuery)
	}
	if got := cfg.API.AllowedOriginList(); len(got) != 2 || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", got)
	}
}

func TestLoadRequiresMinIOCredentials(t *testing.T) {
	t.Setenv("MINIO_ACCESS_KEY_ID", "")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "minio access key id is required") {
		t.Fatalf("expected minio error, got %v", err)
	}
}
