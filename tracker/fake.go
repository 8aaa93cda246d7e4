package tracker

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/hazyhaar/horostracker/idgen"
)

// FakeOptions tunes GenerateFake.
type FakeOptions struct {
	// Count is how many log records to insert.
	Count int
	// Hours spreads the records evenly across the last N hours.
	Hours int
	// FeedbackRate is the probability a record gets a feedback row.
	FeedbackRate float64
	// GoodRatio is, among feedback rows, the chance of is_good=true.
	GoodRatio float64
	// Seed fixes the random stream; 0 seeds from the clock.
	Seed int64
}

var fakeProviderModels = [][2]string{
	{"openai", "gpt-4o-mini"},
	{"openai", "gpt-4o"},
	{"anthropic", "claude-3-5-sonnet"},
	{"google", "gemini-1.5-pro"},
}

var fakeWords = []string{
	"monitor", "evaluate", "drift", "tokens", "cost", "pipeline", "dashboard",
	"check", "quality", "feedback", "reference", "citations", "search", "tool",
	"answer", "instructions",
}

var fakeComments = []string{
	"Looks fine", "Missed references", "Great explanation", "Too verbose", "Off-topic",
}

// GenerateFake seeds the database with plausible records, checks, and
// feedback so dashboards have data before any real ingestion runs.
// Timestamps are spread across the configured window.
func GenerateFake(ctx context.Context, store *Store, eval *Evaluator, pricing *Estimator, opts FakeOptions) (int, error) {
	if opts.Count <= 0 {
		return 0, nil
	}
	if opts.Hours <= 0 {
		opts.Hours = 24
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	nameGen := idgen.Prefixed("fake_", idgen.NanoID(8))
	times := spreadTimes(opts.Count, opts.Hours)

	inserted := 0
	for i := 0; i < opts.Count; i++ {
		pm := fakeProviderModels[rng.Intn(len(fakeProviderModels))]
		provider, model := pm[0], pm[1]
		tin := int64(rng.Intn(21500) + 500)
		tout := int64(rng.Intn(3900) + 100)

		rec := &LogRecord{
			Filename:  fmt.Sprintf("logs/%s.json", nameGen()),
			AgentName: []string{"search", "answer", "support"}[rng.Intn(3)],
			Provider:  provider,
			Model:     model,
			Prompt: fmt.Sprintf("How do I %s %s?",
				[]string{"monitor", "audit", "evaluate", "tune"}[rng.Intn(4)],
				[]string{"data drift", "LLM costs", "tool usage", "feedback"}[rng.Intn(4)]),
			Instructions: "You are a search assistant. Provide references and keep the answer clear.",
			Answer:       fakeText(rng, rng.Intn(80)+40),
			InputTokens:  tin,
			OutputTokens: tout,
			CreatedAt:    times[i],
		}
		if cost, ok := pricing.Estimate(provider, model, tin, tout); ok {
			rec.InputCost = nullable(cost.Input)
			rec.OutputCost = nullable(cost.Output)
			rec.TotalCost = nullable(cost.Total)
		}

		logID, err := store.InsertLog(ctx, rec)
		if err != nil {
			return inserted, err
		}

		checks := eval.Evaluate(logID, rec)
		for j := range checks {
			checks[j].CreatedAt = times[i]
		}
		if err := store.InsertChecks(ctx, checks); err != nil {
			return inserted, err
		}

		if rng.Float64() < opts.FeedbackRate {
			fb := &Feedback{
				LogID:     logID,
				IsGood:    rng.Float64() < opts.GoodRatio,
				Comments:  fakeComments[rng.Intn(len(fakeComments))],
				CreatedAt: times[i],
			}
			if _, err := store.InsertFeedback(ctx, fb); err != nil {
				return inserted, err
			}
		}
		inserted++
	}
	return inserted, nil
}

// spreadTimes returns count instants evenly covering the last hours.
func spreadTimes(count, hours int) []time.Time {
	now := time.Now().UTC()
	if count <= 1 {
		return []time.Time{now}
	}
	start := now.Add(-time.Duration(hours) * time.Hour)
	step := now.Sub(start) / time.Duration(count-1)
	out := make([]time.Time, count)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

func fakeText(rng *rand.Rand, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fakeWords[rng.Intn(len(fakeWords))]
	}
	s := strings.Join(words, " ") + "."
	return strings.ToUpper(s[:1]) + s[1:]
}
