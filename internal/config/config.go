package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Lead sink names accepted in LEAD_SINKS.
const (
	SinkLog    = "log"
	SinkSQLite = "sqlite"
	SinkRedis  = "redis"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env         Environment `envconfig:"APP_ENV" default:"development"`
	Port        string      `envconfig:"PORT" default:"8000"`
	DBPath      string      `envconfig:"DB_PATH" default:"./dev.db"`
	CatalogPath string      `envconfig:"CATALOG_PATH"`

	PreviewDir           string        `envconfig:"PREVIEW_DIR" default:"./files"`
	PreviewTTL           time.Duration `envconfig:"PREVIEW_TTL" default:"10m"`
	PreviewSweepInterval time.Duration `envconfig:"PREVIEW_SWEEP_INTERVAL" default:"1m"`

	MaxUploadMB        int64    `envconfig:"MAX_UPLOAD_MB" default:"100"`
	AcceptedExtensions []string `envconfig:"ACCEPTED_EXTENSIONS" default:".stl,.obj,.3mf"`
	CORSOrigins        []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`

	MeterThreshold     float64 `envconfig:"METER_THRESHOLD" default:"2.0"`
	BBoxFallbackFactor float64 `envconfig:"BBOX_FALLBACK_FACTOR" default:"0.5"`

	LeadSinks []string `envconfig:"LEAD_SINKS" default:"log,sqlite"`
	Redis     Redis    `envconfig:"REDIS"`
}

// Load reads .env (best effort) and the process environment into a
// validated Config.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the process environment into a validated Config.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	cfg.AcceptedExtensions = cleanList(cfg.AcceptedExtensions, true)
	cfg.CORSOrigins = cleanList(cfg.CORSOrigins, false)
	cfg.LeadSinks = cleanList(cfg.LeadSinks, true)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is empty"))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB))
	}
	if c.PreviewTTL <= 0 {
		errs = append(errs, fmt.Errorf("PREVIEW_TTL must be positive, got %s", c.PreviewTTL))
	}
	if c.PreviewSweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("PREVIEW_SWEEP_INTERVAL must be positive, got %s", c.PreviewSweepInterval))
	}
	if c.MeterThreshold < 0 {
		errs = append(errs, fmt.Errorf("METER_THRESHOLD must not be negative, got %v", c.MeterThreshold))
	}
	if c.BBoxFallbackFactor <= 0 || c.BBoxFallbackFactor > 1 {
		errs = append(errs, fmt.Errorf("BBOX_FALLBACK_FACTOR must be in (0, 1], got %v", c.BBoxFallbackFactor))
	}
	if len(c.AcceptedExtensions) == 0 {
		errs = append(errs, errors.New("ACCEPTED_EXTENSIONS is empty"))
	}
	for _, s := range c.LeadSinks {
		switch s {
		case SinkLog, SinkSQLite:
		case SinkRedis:
			if c.Redis.URL == "" {
				errs = append(errs, errors.New("LEAD_SINKS includes redis but REDIS_URL is empty"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown lead sink %q", s))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Warnings lists settings that are allowed but probably unintended.
func (c Config) Warnings() []string {
	var out []string
	if c.Env.IsProduction() && slices.Contains(c.CORSOrigins, "*") {
		out = append(out, "CORS_ORIGINS allows any origin in production")
	}
	if c.Env.IsProduction() && c.CatalogPath == "" {
		out = append(out, "CATALOG_PATH is not set; using the built-in catalog")
	}
	if c.Redis.URL != "" && !c.SinkEnabled(SinkRedis) {
		out = append(out, "REDIS_URL is set but redis is not in LEAD_SINKS")
	}
	if len(c.LeadSinks) == 0 {
		out = append(out, "LEAD_SINKS is empty; quote requests are acknowledged and dropped")
	}
	for _, ext := range c.AcceptedExtensions {
		if ext == ".step" || ext == ".stp" {
			out = append(out, fmt.Sprintf("%s is accepted but has no decoder; uploads will report an error", ext))
		}
	}
	return out
}

// SinkEnabled reports whether name is listed in LEAD_SINKS.
func (c Config) SinkEnabled(name string) bool {
	return slices.Contains(c.LeadSinks, name)
}

// MaxUploadBytes is MAX_UPLOAD_MB in bytes.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
