package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cardvault/cardvault/internal/domain"
	"github.com/cardvault/cardvault/internal/metrics"
	"github.com/cardvault/cardvault/internal/normalize"
	"github.com/google/uuid"
)

const (
	// DefaultPaceEvery is how many cards are persisted between pacing
	// pauses against the target store.
	DefaultPaceEvery = 50

	// DefaultPaceDelay is the length of one pacing pause.
	DefaultPaceDelay = 250 * time.Millisecond
)

// Fetcher yields the full ordered catalog; a fatal fetch failure aborts
// the run before any card is processed.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]domain.RawCard, error)
}

// Report is the run summary the controller emits on completion. A
// completed run with per-card errors is still a success; Aborted is set
// only on fatal fetch failure or cancellation.
type Report struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Success    int
	Errors     int
	UniqueSets int
	Priced     int
	Aborted    bool
}

// Runner drives one run: Fetcher, then Normalizer and Persister per card.
type Runner struct {
	Fetcher   Fetcher
	Persister *Persister
	Metrics   *metrics.Registry

	// PaceEvery and PaceDelay throttle writes; zero values fall back to
	// the defaults. Workers > 1 enables parallel persistence; fetch stays
	// sequential regardless.
	PaceEvery int
	PaceDelay time.Duration
	Workers   int
}

// Run executes the pipeline. The returned error is non-nil only for a
// fatal fetch failure; per-card errors are counted in the report and
// logged. Cancellation takes effect between cards: in-flight cards finish
// and a partial report is returned with Aborted set.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.New(), StartedAt: time.Now()}
	slog.Info("starting ingestion run", "run_id", report.RunID)

	cards, err := r.Fetcher.FetchAll(ctx)
	if err != nil {
		report.Aborted = true
		report.FinishedAt = time.Now()
		slog.Error("catalog fetch failed, aborting run", "run_id", report.RunID, "error", err)
		return report, err
	}
	report.Total = len(cards)

	t := &tally{sets: make(map[string]struct{})}
	if r.Workers > 1 {
		report.Aborted = r.runParallel(ctx, cards, t)
	} else {
		report.Aborted = r.runSequential(ctx, cards, t)
	}

	report.Success = t.success
	report.Errors = t.errors
	report.UniqueSets = len(t.sets)
	report.Priced = t.priced
	report.FinishedAt = time.Now()

	slog.Info("ingestion run complete",
		"run_id", report.RunID,
		"total", report.Total,
		"success", report.Success,
		"errors", report.Errors,
		"unique_sets", report.UniqueSets,
		"priced", report.Priced,
		"aborted", report.Aborted,
	)
	return report, nil
}

func (r *Runner) runSequential(ctx context.Context, cards []domain.RawCard, t *tally) (aborted bool) {
	paceEvery, paceDelay := r.pacing()
	for i, raw := range cards {
		if ctx.Err() != nil {
			slog.Info("run canceled, emitting partial summary", "processed", i)
			return true
		}
		r.processCard(raw, t)

		if paceEvery > 0 && (i+1)%paceEvery == 0 && i+1 < len(cards) {
			if err := sleep(ctx, paceDelay); err != nil {
				slog.Info("run canceled during pacing pause", "processed", i+1)
				return true
			}
		}
	}
	return false
}

func (r *Runner) runParallel(ctx context.Context, cards []domain.RawCard, t *tally) (aborted bool) {
	paceEvery, paceDelay := r.pacing()
	jobs := make(chan domain.RawCard)
	var wg sync.WaitGroup

	for w := 0; w < r.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for raw := range jobs {
				r.processCard(raw, t)
			}
		}()
	}

	for i, raw := range cards {
		if ctx.Err() != nil {
			aborted = true
			break
		}
		jobs <- raw
		if paceEvery > 0 && (i+1)%paceEvery == 0 && i+1 < len(cards) {
			if err := sleep(ctx, paceDelay); err != nil {
				aborted = true
				break
			}
		}
	}
	close(jobs)
	wg.Wait()
	if aborted {
		slog.Info("run canceled, workers drained, emitting partial summary")
	}
	return aborted
}

// processCard runs one card through the normalizer and persister and folds
// the outcome into the tally.
func (r *Runner) processCard(raw domain.RawCard, t *tally) {
	n := normalize.Card(raw)
	_, err := r.Persister.Persist(n)
	if err != nil {
		slog.Error("card persist failed", "card_id", raw.ID, "card_name", raw.Name, "error", err)
	}
	t.record(n, err, r.Metrics)
}

func (r *Runner) pacing() (int, time.Duration) {
	every, delay := r.PaceEvery, r.PaceDelay
	if every == 0 {
		every = DefaultPaceEvery
	}
	if delay == 0 {
		delay = DefaultPaceDelay
	}
	return every, delay
}

// tally is the run's accumulator. One mutex guards it; workers of the
// parallel path all fold into the same instance.
type tally struct {
	mu      sync.Mutex
	success int
	errors  int
	priced  int
	sets    map[string]struct{}
}

func (t *tally) record(n normalize.Normalized, err error, m *metrics.Registry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n.Set != nil {
		if _, seen := t.sets[n.Set.ID]; !seen {
			t.sets[n.Set.ID] = struct{}{}
			if m != nil {
				m.SetsObserved.Inc()
			}
		}
	}
	if n.Price != nil {
		t.priced++
		if m != nil {
			m.PricedCards.Inc()
		}
	}
	if err != nil {
		t.errors++
		if m != nil {
			m.CardErrors.Inc()
		}
		return
	}
	t.success++
	if m != nil {
		m.CardsIngested.Inc()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
