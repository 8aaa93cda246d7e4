// Command fakegen seeds the horostracker database with plausible log
// records, evaluation results, and feedback, spread over a time window.
// Useful for exercising dashboards before any real logs exist.
//
// Usage:
//
//	fakegen -count 200 -hours 24 -feedback-rate 0.5 -good-ratio 0.65
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/hazyhaar/horostracker/tracker"
)

func main() {
	count := flag.Int("count", 200, "number of fake logs to generate")
	hours := flag.Int("hours", 24, "spread records across the last N hours")
	feedbackRate := flag.Float64("feedback-rate", 0.5, "probability a log gets feedback")
	goodRatio := flag.Float64("good-ratio", 0.65, "among feedback, chance of good feedback")
	seed := flag.Int64("seed", 0, "random seed (0 = from clock)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := tracker.FromEnv()
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

	pricing, err := tracker.NewEstimator()
	if err != nil {
		logger.Warn("pricing table unusable, seeding without costs", "error", err)
	}

	n, err := tracker.GenerateFake(context.Background(), store, tracker.NewEvaluator(), pricing, tracker.FakeOptions{
		Count:        *count,
		Hours:        *hours,
		FeedbackRate: *feedbackRate,
		GoodRatio:    *goodRatio,
		Seed:         *seed,
	})
	if err != nil {
		logger.Error("generation failed", "inserted", n, "error", err)
		os.Exit(1)
	}
	logger.Info("done", "inserted", n, "hours", *hours)
}
