// Package config reads the deployment settings from the environment
// and the optional provider seed file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	app "github.com/tariffio/tariff-import/internal/application/tariff"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string

	EnableSFTP bool

	// MaxRetries is the attempt budget given to newly created jobs.
	MaxRetries     int
	ChunkRows      int
	RetryBackoff   time.Duration
	MaxRunDuration time.Duration

	TickSpec     string
	PendingBatch int
	RetryBatch   int
	PausedBatch  int

	StaleAfter      time.Duration
	StaleBackoff    time.Duration
	NearDonePercent float64
	NearDoneGrace   time.Duration
	DeadAfter       time.Duration

	// DriveRedirectURL is the registered OAuth redirect target,
	// e.g. https://imports.example.com/gdrive/oauth/callback.
	DriveRedirectURL string

	// ProvidersFile optionally points at a YAML provider seed list
	// applied at startup.
	ProvidersFile string
}

func Load() (Config, error) {
	cfg := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),

		EnableSFTP: getBool("ENABLE_SFTP", true),

		MaxRetries:     getInt("IMPORT_MAX_RETRIES", 3),
		ChunkRows:      getInt("IMPORT_CHUNK_ROWS", 2000),
		RetryBackoff:   getDuration("IMPORT_RETRY_BACKOFF", 2*time.Minute),
		MaxRunDuration: getDuration("IMPORT_MAX_RUN_DURATION", 20*time.Minute),

		TickSpec:     getEnv("SCHEDULER_TICK", "@every 1m"),
		PendingBatch: getInt("SCHEDULER_PENDING_BATCH", 2),
		RetryBatch:   getInt("SCHEDULER_RETRY_BATCH", 2),
		PausedBatch:  getInt("SCHEDULER_PAUSED_BATCH", 2),

		StaleAfter:      getDuration("JOB_STALE_AFTER", 5*time.Minute),
		StaleBackoff:    getDuration("JOB_STALE_BACKOFF", 2*time.Minute),
		NearDonePercent: getFloat("JOB_NEAR_DONE_PERCENT", 99),
		NearDoneGrace:   getDuration("JOB_NEAR_DONE_GRACE", 3*time.Minute),
		DeadAfter:       getDuration("JOB_DEAD_AFTER", 30*time.Minute),

		DriveRedirectURL: os.Getenv("GDRIVE_REDIRECT_URL"),
		ProvidersFile:    os.Getenv("PROVIDERS_FILE"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// LoadProviderSeeds parses a YAML file of the form
//
//	providers:
//	  - name: acme
//	    protocol: ftp
//	    ...
//
// where each entry carries the same fields as the provider admin API.
func LoadProviderSeeds(path string) ([]app.ProviderParams, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	var doc struct {
		Providers []app.ProviderParams `yaml:"providers"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	return doc.Providers, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
