package config

import (
	"os"
	"strconv"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	DatabaseURL string

	ListenAddr string

	// WindowMinutes is the length of the aggregation window in minutes.
	// The cache worker runs once per window and window boundaries are
	// floored to multiples of this value.
	WindowMinutes int

	// MergeWorkers bounds how many surveys are merged concurrently
	// within a single run.
	MergeWorkers int

	// InternalAPIKey is the bearer token used by trusted internal callers
	// (event producers, the run-trigger endpoint). If empty, it must be
	// created through the database before ingest works.
	InternalAPIKey string

	// AlertWebhookURL, when set, receives a JSON POST for each operator
	// alert (e.g. a suspected double run). If empty, alerts are only logged.
	AlertWebhookURL string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		AdminUser:       getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:   getenv("APP_ADMIN_PASSWORD", "changeme"),
		DatabaseURL:     os.Getenv("APP_DATABASE_URL"),
		ListenAddr:      getenv("APP_LISTEN_ADDR", ":8080"),
		WindowMinutes:   10,
		MergeWorkers:    4,
		InternalAPIKey:  getenv("APP_INTERNAL_API_KEY", ""),
		AlertWebhookURL: getenv("APP_ALERT_WEBHOOK_URL", ""),
	}

	if v := os.Getenv("APP_WINDOW_MINUTES"); v != "" {
		if mins, err := strconv.Atoi(v); err == nil && mins > 0 {
			cfg.WindowMinutes = mins
		}
	}

	if v := os.Getenv("APP_MERGE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MergeWorkers = n
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
