package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var configKeys = []string{
	"APP_ENV", "PORT", "DB_PATH", "CATALOG_PATH", "PREVIEW_DIR", "PREVIEW_TTL",
	"PREVIEW_SWEEP_INTERVAL", "MAX_UPLOAD_MB", "ACCEPTED_EXTENSIONS", "CORS_ORIGINS",
	"METER_THRESHOLD", "BBOX_FALLBACK_FACTOR", "LEAD_SINKS", "REDIS_URL", "REDIS_LEAD_KEY",
	"REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT", "REDIS_DIAL_TIMEOUT",
}

func TestFromEnv_Defaults(t *testing.T) {
	unsetenv(t, configKeys...)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if cfg.Env != Development || cfg.Port != "8000" || cfg.DBPath != "./dev.db" {
		t.Fatalf("unexpected basics: %+v", cfg)
	}
	if cfg.PreviewTTL != 10*time.Minute || cfg.PreviewSweepInterval != time.Minute {
		t.Fatalf("unexpected preview timings: %s %s", cfg.PreviewTTL, cfg.PreviewSweepInterval)
	}
	if cfg.MaxUploadBytes() != 100<<20 {
		t.Fatalf("max upload = %d", cfg.MaxUploadBytes())
	}
	if cfg.MeterThreshold != 2.0 || cfg.BBoxFallbackFactor != 0.5 {
		t.Fatalf("unexpected estimator settings: %v %v", cfg.MeterThreshold, cfg.BBoxFallbackFactor)
	}
	if diff := cmp.Diff([]string{".stl", ".obj", ".3mf"}, cfg.AcceptedExtensions); diff != "" {
		t.Fatalf("extensions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"log", "sqlite"}, cfg.LeadSinks); diff != "" {
		t.Fatalf("sinks (-want +got):\n%s", diff)
	}
	if cfg.Redis.LeadKey != "meshquote:leads" || cfg.Redis.DialTimeout != 5 {
		t.Fatalf("unexpected redis defaults: %+v", cfg.Redis)
	}
	if len(cfg.Warnings()) != 0 {
		t.Fatalf("unexpected warnings: %v", cfg.Warnings())
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	unsetenv(t, configKeys...)
	t.Setenv("APP_ENV", "PROD")
	t.Setenv("ACCEPTED_EXTENSIONS", " .STL, .step ,.stl")
	t.Setenv("LEAD_SINKS", "log,redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_LEAD_KEY", "quotes")
	t.Setenv("PREVIEW_TTL", "30s")
	t.Setenv("CORS_ORIGINS", "*")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if !cfg.Env.IsProduction() {
		t.Fatalf("env = %q, want production", cfg.Env)
	}
	if diff := cmp.Diff([]string{".stl", ".step"}, cfg.AcceptedExtensions); diff != "" {
		t.Fatalf("extensions (-want +got):\n%s", diff)
	}
	if !cfg.SinkEnabled(SinkRedis) || cfg.SinkEnabled(SinkSQLite) {
		t.Fatalf("sinks = %v", cfg.LeadSinks)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" || cfg.Redis.LeadKey != "quotes" {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.PreviewTTL != 30*time.Second {
		t.Fatalf("ttl = %s", cfg.PreviewTTL)
	}

	warnings := strings.Join(cfg.Warnings(), "\n")
	for _, want := range []string{"CORS_ORIGINS", "CATALOG_PATH", ".step"} {
		if !strings.Contains(warnings, want) {
			t.Fatalf("expected warning mentioning %s, got:\n%s", want, warnings)
		}
	}
}

func TestFromEnv_RejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"zero upload limit":    {"MAX_UPLOAD_MB": "0"},
		"bbox factor too big":  {"BBOX_FALLBACK_FACTOR": "1.5"},
		"negative threshold":   {"METER_THRESHOLD": "-1"},
		"unknown sink":         {"LEAD_SINKS": "log,email"},
		"redis sink needs url": {"LEAD_SINKS": "redis"},
		"bad duration":         {"PREVIEW_TTL": "soon"},
		"no extensions":        {"ACCEPTED_EXTENSIONS": " , "},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			unsetenv(t, configKeys...)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}

func TestParseEnvironment(t *testing.T) {
	cases := map[string]Environment{
		"production": Production,
		" Prod ":     Production,
		"test":       Testing,
		"":           Development,
		"staging":    Development,
	}
	for in, want := range cases {
		if got := ParseEnvironment(in); got != want {
			t.Fatalf("ParseEnvironment(%q) = %q, want %q", in, got, want)
		}
	}
}
