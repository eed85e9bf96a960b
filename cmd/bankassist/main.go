package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"bankassist/internal/app"
	"bankassist/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var timeout time.Duration
	flag.StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, "Base URL of the banking service")
	flag.StringVar(&cfg.Mode, "mode", cfg.Mode, "Presentation mode (widget|modal)")
	flag.StringVar(&cfg.TranscriptPath, "transcript", cfg.TranscriptPath, "Path to the conversation transcript database")
	flag.DurationVar(&timeout, "timeout", cfg.RequestTimeout, "HTTP request timeout")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.Parse()
	cfg.RequestTimeout = timeout

	if cfg.Mode != config.ModeWidget && cfg.Mode != config.ModeModal {
		fmt.Fprintf(os.Stderr, "Invalid mode %q (want %s or %s)\n", cfg.Mode, config.ModeWidget, config.ModeModal)
		os.Exit(1)
	}

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
