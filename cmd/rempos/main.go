package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"rempos/internal/config"
	"rempos/internal/web"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		configPath    string
		host          string
		port          string
		summarizePath string
		simulateURL   string
		simulateRate  float64
		simulateCount int
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config (defaults apply when empty)")
	flag.StringVar(&host, "host", "", "Ingest bind address; overrides ingest.host")
	flag.StringVar(&port, "port", "", "Ingest port; overrides ingest.port")
	flag.StringVar(&summarizePath, "summarize", "", "Summarize a captured message stream and exit")
	flag.StringVar(&simulateURL, "simulate", "", "Stream synthetic phone telemetry to a bridge at this ws:// address and exit")
	flag.Float64Var(&simulateRate, "simulate-rate", 30, "Samples per second for -simulate")
	flag.IntVar(&simulateCount, "simulate-count", 0, "Stop -simulate after this many samples (0 = until interrupted)")
	flag.Parse()

	if strings.TrimSpace(summarizePath) != "" {
		if err := printCaptureSummary(os.Stdout, summarizePath); err != nil {
			fmt.Fprintf(os.Stderr, "summarize failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if strings.TrimSpace(simulateURL) != "" {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err := simulate(ctx, os.Stdout, simulateURL, simulateRate, simulateCount)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "simulate failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(configPath, host, port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(2)
	}

	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	logger, err := newLogger(cfg.Log, os.Stderr, logs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(2)
	}
	log.Logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("version", cfg.Ingest.Version).Msg("rempos starting")
	if err := run(ctx, cfg, logs); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("rempos failed")
		cancel()
		os.Exit(1)
	}
	log.Info().Msg("rempos stopped")
}

// loadConfig reads path (or starts from defaults when it is empty) and
// applies the -host and -port overrides.
func loadConfig(path, host, port string) (config.Config, error) {
	var cfg config.Config
	if strings.TrimSpace(path) != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if host != "" {
		cfg.Ingest.Host = host
	}
	if port != "" {
		cfg.Ingest.Port = port
	}
	if cfg.Ingest.Version == "dev" {
		cfg.Ingest.Version = version
	}
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
