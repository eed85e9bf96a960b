package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Presentation modes for the conversation engine. The small persistent widget
// and the full-screen modal share one state machine and differ only in
// welcome text and suggestion count.
const (
	ModeWidget = "widget"
	ModeModal  = "modal"
)

// Config holds application configuration
type Config struct {
	ServiceURL     string        // Base URL of the remote banking service
	RequestTimeout time.Duration // HTTP client timeout; expired requests surface as failures
	TranscriptPath string        // SQLite file for the conversation audit transcript
	Mode           string        // Presentation mode (widget|modal)
	Debug          bool
}

// Load reads configuration from a .env file (when present) and the
// environment. Flag values layered on top by the caller win over env.
func Load() (Config, error) {
	// A missing .env is fine: plain environment variables still apply.
	_ = godotenv.Load()

	cfg := Config{
		ServiceURL:     getEnv("BANKASSIST_SERVICE_URL", "http://localhost:5000"),
		TranscriptPath: getEnv("BANKASSIST_TRANSCRIPT", "transcript.db"),
		Mode:           getEnv("BANKASSIST_MODE", ModeModal),
	}

	timeout, err := time.ParseDuration(getEnv("BANKASSIST_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid BANKASSIST_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = timeout

	debug, err := strconv.ParseBool(getEnv("BANKASSIST_DEBUG", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid BANKASSIST_DEBUG: %w", err)
	}
	cfg.Debug = debug

	if cfg.Mode != ModeWidget && cfg.Mode != ModeModal {
		return Config{}, fmt.Errorf("invalid mode %q (want %s or %s)", cfg.Mode, ModeWidget, ModeModal)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
