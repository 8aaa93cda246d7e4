package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hazyhaar/horostracker/dbopen"
)

// Config is built once at process start and passed by reference to the
// components that need it. There is no global mutable configuration.
type Config struct {
	// LogsDir is the directory polled for new log artifacts.
	LogsDir string
	// DatabaseURL selects the backend (postgres:// or sqlite://). When the
	// environment leaves it unset, FromEnv falls back to a local embedded
	// file next to the working directory.
	DatabaseURL string
	// FileGlob matches candidate filenames inside LogsDir.
	FileGlob string
	// ProcessedPrefix marks ingested files; files carrying it are skipped.
	ProcessedPrefix string
	// PollInterval is the sleep between watch-mode passes.
	PollInterval time.Duration
	// Debug raises log verbosity to slog.LevelDebug.
	Debug bool
	// Listen, when non-empty, serves the HTTP API on this address.
	Listen string
	// PricingPath optionally overrides the embedded pricing table.
	PricingPath string
}

// DefaultDatabaseURL is used when DATABASE_URL is unset. This is the only
// fallback path: an explicitly configured backend that cannot be reached
// is a fatal startup error.
const DefaultDatabaseURL = "sqlite://horostracker.db"

// FromEnv reads the recognized TRACKER_* variables (and DATABASE_URL) into
// a Config. Unset variables get defaults; call Validate before use.
func FromEnv() Config {
	return Config{
		LogsDir:         env("TRACKER_LOGS_DIR", "logs"),
		DatabaseURL:     env("DATABASE_URL", DefaultDatabaseURL),
		FileGlob:        env("TRACKER_FILE_GLOB", "*.json"),
		ProcessedPrefix: env("TRACKER_PROCESSED_PREFIX", "_"),
		PollInterval:    time.Duration(envInt("TRACKER_POLL_SECONDS", 5)) * time.Second,
		Debug:           envBool("TRACKER_DEBUG", false),
		Listen:          env("TRACKER_LISTEN", ""),
		PricingPath:     env("TRACKER_PRICING_PATH", ""),
	}
}

// Validate checks that the configuration is usable. Errors here are fatal
// at startup; a misconfigured poller must not limp along.
func (c *Config) Validate() error {
	if c.LogsDir == "" {
		return fmt.Errorf("config: logs dir is required")
	}
	if c.ProcessedPrefix == "" {
		return fmt.Errorf("config: processed prefix is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be > 0, got %s", c.PollInterval)
	}
	// filepath.Match reports malformed patterns regardless of the name.
	if _, err := filepath.Match(c.FileGlob, "probe.json"); err != nil {
		return fmt.Errorf("config: bad file glob %q: %w", c.FileGlob, err)
	}
	if _, _, err := dbopen.Parse(c.DatabaseURL); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
