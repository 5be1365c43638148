// Command grains runs a granular contact simulation headless and writes
// telemetry, perf logs and snapshots.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pthm-cable/grains/config"
	"github.com/pthm-cable/grains/telemetry"
	"github.com/pthm-cable/grains/world"
)

func main() {
	// Optional .env with GRAINS_* overrides
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env", "error", err)
	}

	// CLI flags
	configPath := flag.String("config", os.Getenv("GRAINS_CONFIG"), "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", os.Getenv("GRAINS_OUTPUT_DIR"), "Output directory for CSV logs and snapshots")
	logLevel := flag.String("log-level", envOr("GRAINS_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	logStats := flag.Bool("log-stats", false, "Output window and perf stats via slog")
	steps := flag.Int("steps", 0, "Steps to run (0 = use config)")
	snapshotEvery := flag.Int("snapshot-every", 0, "Steps between snapshots (0 = final only)")
	resume := flag.String("resume", "", "Snapshot file to resume from")
	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	nSteps := cfg.Physics.Steps
	if *steps > 0 {
		nSteps = *steps
	}

	opts := world.Options{
		LogStats:      *logStats,
		OutputDir:     *outputDir,
		SnapshotEvery: *snapshotEvery,
	}

	var w *world.World
	var err error
	if *resume != "" {
		var snap *telemetry.Snapshot
		snap, err = telemetry.LoadSnapshot(*resume)
		if err == nil {
			w, err = world.NewFromSnapshot(cfg, snap, opts)
		}
	} else {
		w, err = world.New(cfg, opts)
	}
	if err != nil {
		slog.Error("failed to create world", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	slog.Info("starting simulation",
		"scene", cfg.Scene.Name,
		"law", cfg.Problem.Law,
		"solver", cfg.Optim.Solver,
		"dim", cfg.Physics.Dim,
		"steps", nSteps,
		"output_dir", w.OutputDir(),
	)

	runErr := w.Run(ctx, nSteps)
	if err := w.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	if runErr != nil {
		slog.Error("simulation stopped", "error", runErr)
		os.Exit(1)
	}

	slog.Info("simulation complete",
		"steps", w.StepCount(),
		"time", w.Time(),
		"kinetic_energy", w.KineticEnergy(),
		"perf", w.PerfStats(),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
