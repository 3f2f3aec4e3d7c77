// Command sparkbox is the main entry point for the SparkBox kiosk station.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sparkbox-kiosk/sparkbox/internal/config"
	"github.com/sparkbox-kiosk/sparkbox/internal/observe"
	"github.com/sparkbox-kiosk/sparkbox/internal/station"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sparkbox: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sparkbox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("sparkbox starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	st, err := station.New(cfg, metrics, logger)
	if err != nil {
		slog.Error("failed to initialise station", "err", err)
		return 1
	}

	slog.Info("station ready, press Ctrl+C to shut down")

	if err := st.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        SparkBox startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("Vision", cfg.Vision.ModelName)
	printEntry("Solution", cfg.SolutionGenerator.ModelName)
	printEntry("Preview", cfg.ImageGenerator.ModelName)
	if cfg.Voice.BaseURL != "" {
		printEntry("Voice", cfg.Voice.ModelName)
	} else {
		printEntry("Voice", "(disabled)")
	}
	printEntry("Camera", fmt.Sprintf("/dev/video%d %dx%d", cfg.Camera.DeviceID, cfg.Camera.Width, cfg.Camera.Height))
	buttons := 0
	for _, b := range []config.ButtonConfig{cfg.IO.Capture, cfg.IO.Video, cfg.IO.PgUp, cfg.IO.PgDn} {
		if b.Pin != "" {
			buttons++
		}
	}
	fmt.Printf("║  Buttons         : %-19d ║\n", buttons)
	printEntry("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
