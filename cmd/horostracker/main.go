// Command horostracker ingests LLM interaction log files into a database,
// evaluates them, and optionally serves the read/feedback HTTP API.
//
// Usage:
//
//	horostracker                 # one-shot pass over the logs directory
//	horostracker -watch          # poll the directory until interrupted
//	horostracker -watch -listen :8086
//	horostracker -debug          # raise log verbosity
//
// Configuration comes from the environment (TRACKER_LOGS_DIR, DATABASE_URL,
// TRACKER_FILE_GLOB, TRACKER_PROCESSED_PREFIX, TRACKER_POLL_SECONDS,
// TRACKER_DEBUG, TRACKER_LISTEN, TRACKER_PRICING_PATH); flags override it.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/horostracker/tracker"
)

func main() {
	watch := flag.Bool("watch", false, "run in watch mode (poll the directory)")
	debug := flag.Bool("debug", false, "enable debug logging")
	listen := flag.String("listen", "", "serve the HTTP API on this address (watch mode)")
	flag.Parse()

	cfg := tracker.FromEnv()
	if *debug {
		cfg.Debug = true
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := tracker.OpenStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("database ready", "dialect", store.Dialect().String())

	pricing, err := loadPricing(&cfg, logger)
	if err != nil {
		logger.Error("load pricing", "error", err)
		os.Exit(1)
	}

	runner := tracker.NewRunner(store, tracker.NewDirSource(&cfg),
		tracker.NewEvaluator(), pricing, cfg.PollInterval,
		tracker.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*watch {
		count, err := runner.RunOnce(ctx)
		if err != nil {
			logger.Error("pass failed", "error", err)
			os.Exit(1)
		}
		logger.Info("done", "ingested", count)
		return
	}

	if cfg.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           tracker.NewRouter(store, runner),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("http api listening", "addr", cfg.Listen)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http api failed", "error", err)
			}
		}()
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shCtx)
		}()
	}

	logger.Info("watching", "dir", cfg.LogsDir, "glob", cfg.FileGlob,
		"prefix", cfg.ProcessedPrefix, "interval", cfg.PollInterval.String())
	if err := runner.Watch(ctx); err != nil {
		logger.Error("watch loop failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down", "stats", runner.Stats())
}

// loadPricing degrades to nil (no costs) when the table is unusable;
// ingestion must keep working without pricing data.
func loadPricing(cfg *tracker.Config, logger *slog.Logger) (*tracker.Estimator, error) {
	if cfg.PricingPath != "" {
		return tracker.NewEstimatorFromFile(cfg.PricingPath)
	}
	est, err := tracker.NewEstimator()
	if err != nil {
		logger.Warn("embedded pricing table unusable, ingesting without costs", "error", err)
		return nil, nil
	}
	return est, nil
}
