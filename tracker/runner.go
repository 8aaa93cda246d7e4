package tracker

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hazyhaar/horostracker/idgen"
)

// Runner orchestrates one ingestion pass: list files, and for each one
// parse, price, insert, evaluate, then mark processed. Everything runs
// sequentially on the calling goroutine; per-file failures are logged and
// skipped, infrastructure failures abort the pass.
type Runner struct {
	store    *Store
	source   Source
	eval     *Evaluator
	pricing  *Estimator
	interval time.Duration
	log      *slog.Logger
	passID   idgen.Generator

	// Counters for observability, exported via Stats.
	passes   atomic.Int64
	seen     atomic.Int64
	ingested atomic.Int64
	failures atomic.Int64
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// WithPassIDGenerator sets a custom generator for per-pass correlation ids.
func WithPassIDGenerator(gen idgen.Generator) RunnerOption {
	return func(r *Runner) { r.passID = gen }
}

// NewRunner wires the pipeline. pricing may be nil: records then carry
// null costs, which is a degraded state and not an error.
func NewRunner(store *Store, source Source, eval *Evaluator, pricing *Estimator, interval time.Duration, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:    store,
		source:   source,
		eval:     eval,
		pricing:  pricing,
		interval: interval,
		log:      slog.Default(),
		passID:   idgen.Prefixed("pass_", idgen.NanoID(10)),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Stats are point-in-time counters.
type Stats struct {
	Passes   int64 `json:"passes"`
	Seen     int64 `json:"files_seen"`
	Ingested int64 `json:"files_ingested"`
	Failures int64 `json:"files_failed"`
}

// Stats returns the current counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Passes:   r.passes.Load(),
		Seen:     r.seen.Load(),
		Ingested: r.ingested.Load(),
		Failures: r.failures.Load(),
	}
}

// RunOnce executes a single pass and returns how many files were ingested.
// A non-nil error means shared infrastructure failed (database or
// directory); per-file errors are logged, leave the file unprocessed, and
// never abort the batch.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	r.passes.Add(1)
	log := r.log.With("pass", r.passID())

	// Shared infrastructure first: an unreachable database fails the pass
	// before any file is touched.
	if err := r.store.Ping(ctx); err != nil {
		return 0, err
	}

	files, err := r.source.IterFiles(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, path := range files {
		r.seen.Add(1)
		logID, err := r.processFile(ctx, path)
		if err != nil {
			// File stays in place for inspection or retry.
			r.failures.Add(1)
			log.Error("failed to process file", "file", path, "error", err)
			continue
		}
		r.ingested.Add(1)
		count++
		log.Debug("ingested file", "file", path, "log_id", logID)
	}
	log.Info("pass complete", "files", len(files), "ingested", count)
	return count, nil
}

func (r *Runner) processFile(ctx context.Context, path string) (int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	rec, err := ParseLog(path, raw)
	if err != nil {
		return 0, err
	}

	if cost, ok := r.pricing.Estimate(rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens); ok {
		rec.InputCost = nullable(cost.Input)
		rec.OutputCost = nullable(cost.Output)
		rec.TotalCost = nullable(cost.Total)
	}

	logID, err := r.store.InsertLog(ctx, rec)
	if err != nil {
		return 0, err
	}
	if err := r.store.InsertChecks(ctx, r.eval.Evaluate(logID, rec)); err != nil {
		return 0, err
	}

	// Rename last: the file stays eligible until everything is committed.
	if _, err := r.source.MarkProcessed(path); err != nil {
		return 0, err
	}
	return logID, nil
}

// Watch repeats RunOnce until ctx is cancelled, sleeping the configured
// interval between passes. The stop signal is honored between passes and
// during the sleep, never mid-file, so a file's insert + eval sequence is
// never cut short by shutdown.
//
// When the watched directory supports it, an fsnotify watcher cuts the
// sleep short as soon as new files land; the watcher is an optimization
// only, polling alone is sufficient.
func (r *Runner) Watch(ctx context.Context) error {
	var events chan fsnotify.Event
	if dir, ok := r.source.(*DirSource); ok {
		if w, err := fsnotify.NewWatcher(); err == nil {
			if err := w.Add(dir.Dir); err != nil {
				w.Close()
				r.log.Debug("fsnotify unavailable, falling back to pure polling", "error", err)
			} else {
				defer w.Close()
				events = make(chan fsnotify.Event, 1)
				go forwardCreates(w, events)
			}
		}
	}

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if _, err := r.RunOnce(ctx); err != nil {
			// Surface and retry on the next interval rather than crash.
			r.log.Error("pass failed", "error", err)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.interval)

		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-events:
		}
	}
}

// forwardCreates squeezes the raw fsnotify stream into a wake-up signal:
// only arrivals matter, and one pending wake-up is enough.
func forwardCreates(w *fsnotify.Watcher, wake chan<- fsnotify.Event) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				select {
				case wake <- ev:
				default:
				}
			}
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}
