// Package pipeline runs the eight-stage ordered flow with per-stage failure
// isolation: collect, dedup, prefilter, enhance, score, priority-filter,
// persist, notify. A failed stage logs and the next stage proceeds with
// whatever the previous one produced.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/benchscope/pkg/collector"
	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
	"github.com/umputun/benchscope/pkg/notifier"
	"github.com/umputun/benchscope/pkg/prefilter"
	"github.com/umputun/benchscope/pkg/storage"
	"github.com/umputun/benchscope/pkg/urlutil"
)

// Prefilter is the rule filter stage
type Prefilter interface {
	Apply(candidates []domain.RawCandidate) prefilter.Result
}

// Enhancer is the PDF enhancement stage
type Enhancer interface {
	EnhanceBatch(ctx context.Context, candidates []domain.RawCandidate) []domain.RawCandidate
}

// Scorer is the LLM scoring stage
type Scorer interface {
	ScoreBatch(ctx context.Context, candidates []domain.RawCandidate) []domain.ScoredCandidate
	Stats() (cacheHits, fallbacks, repairs int)
}

// Storage is the persist stage
type Storage interface {
	Save(ctx context.Context, candidates []domain.ScoredCandidate) ([]domain.ScoredCandidate, error)
	Backfill(ctx context.Context) (int, error)
	Cleanup(ctx context.Context) error
	ExistingKeys(ctx context.Context) map[string]storage.ExistingRecord
}

// Notifier is the push stage
type Notifier interface {
	Notify(ctx context.Context, candidates []domain.ScoredCandidate) (notifier.Result, error)
}

// Counters aggregates per-stage input/output sizes and error tallies;
// errors propagate only as counts, never as exceptions past the orchestrator
type Counters struct {
	Collected    map[string]int // per-source collection sizes
	CollectErrs  int
	Deduped      int // survivors of stage 1.5
	DupInRun     int
	DupExisting  int
	Prefiltered  int // survivors of stage 2
	FilterReason map[string]int
	Scored       int
	ScoreDropped int
	CacheHits    int
	Fallbacks    int
	LowDropped   int // priority=low removals
	SavedPrimary int
	Backfilled   int
	Cards        int
	Suppressed   int
}

// Pipeline owns the stage ordering and the run counters
type Pipeline struct {
	collectors []collector.Collector
	prefilter  Prefilter
	enhancer   Enhancer
	scorer     Scorer
	storage    Storage
	notifier   Notifier
	weights    domain.ScoreWeights
	windows    config.DedupWindows
	now        func() time.Time
}

// New wires the stages together
func New(collectors []collector.Collector, pf Prefilter, enh Enhancer, sc Scorer,
	st Storage, nt Notifier, weights domain.ScoreWeights, windows config.DedupWindows) *Pipeline {
	return &Pipeline{
		collectors: collectors,
		prefilter:  pf,
		enhancer:   enh,
		scorer:     sc,
		storage:    st,
		notifier:   nt,
		weights:    weights,
		windows:    windows,
		now:        time.Now,
	}
}

// Run executes all stages in order and returns the aggregated counters.
// The returned error is nil unless the context was canceled; stage failures
// surface in the counters and the log only.
func (p *Pipeline) Run(ctx context.Context) (Counters, error) {
	counters := Counters{Collected: map[string]int{}, FilterReason: map[string]int{}}
	started := p.now()

	lgr.Printf("[INFO] ==== benchscope run started ====")

	// stage 1: collect, sequential across collectors to avoid compounding
	// upstream rate limits
	lgr.Printf("[INFO] [1/7] collecting...")
	var all []domain.RawCandidate
	for _, coll := range p.collectors {
		if ctx.Err() != nil {
			return counters, ctx.Err()
		}
		candidates, err := p.collect(ctx, coll)
		if err != nil {
			lgr.Printf("[ERROR] collector %s failed: %v", coll.Name(), err)
			counters.CollectErrs++
			continue
		}
		counters.Collected[coll.Name()] = len(candidates)
		all = append(all, candidates...)
		lgr.Printf("[INFO] collector %s: %d candidates", coll.Name(), len(candidates))
	}
	lgr.Printf("[INFO] stage collect done: %d candidates, %d collector errors", len(all), counters.CollectErrs)
	if len(all) == 0 {
		lgr.Printf("[WARN] nothing collected, run ends")
		return counters, nil
	}

	// stage 1.5: dedup, first inside the run keeping the earliest, then
	// against the primary store within per-source time windows
	lgr.Printf("[INFO] [1.5/7] deduplicating...")
	deduped := p.dedup(ctx, all, &counters)
	counters.Deduped = len(deduped)
	lgr.Printf("[INFO] stage dedup done: %d kept, %d in-run dups, %d already stored",
		len(deduped), counters.DupInRun, counters.DupExisting)
	if len(deduped) == 0 {
		lgr.Printf("[WARN] nothing new after dedup, run ends")
		return counters, nil
	}

	// stage 2: prefilter
	lgr.Printf("[INFO] [2/7] prefiltering...")
	filtered := p.prefilter.Apply(deduped)
	counters.Prefiltered = len(filtered.Passed)
	counters.FilterReason = filtered.Reasons
	rate := 100 * (1 - float64(len(filtered.Passed))/float64(len(deduped)))
	lgr.Printf("[INFO] stage prefilter done: %d kept (%.1f%% filtered)", len(filtered.Passed), rate)
	if len(filtered.Passed) == 0 {
		lgr.Printf("[WARN] nothing passed prefilter, run ends")
		return counters, nil
	}

	// stage 3: pdf enhancement for the arxiv subset, failures are per-candidate
	lgr.Printf("[INFO] [3/7] enhancing PDFs...")
	enhanced := filtered.Passed
	if p.enhancer != nil {
		enhanced = p.enhancer.EnhanceBatch(ctx, filtered.Passed)
	}

	// stage 4: score
	lgr.Printf("[INFO] [4/7] scoring...")
	scored := p.scorer.ScoreBatch(ctx, enhanced)
	counters.Scored = len(scored)
	counters.ScoreDropped = len(enhanced) - len(scored)
	counters.CacheHits, counters.Fallbacks, _ = p.scorer.Stats()
	lgr.Printf("[INFO] stage score done: %d scored, %d dropped, %d cache hits, %d fallbacks",
		counters.Scored, counters.ScoreDropped, counters.CacheHits, counters.Fallbacks)

	// stage 5: drop low priority, never persisted and never notified
	lgr.Printf("[INFO] [5/7] priority filtering...")
	var keep []domain.ScoredCandidate
	for i := range scored {
		if scored[i].Priority(p.weights) == domain.PriorityLow {
			counters.LowDropped++
			continue
		}
		keep = append(keep, scored[i])
	}
	lgr.Printf("[INFO] stage priority done: %d kept, %d low dropped", len(keep), counters.LowDropped)

	// stage 6: persist, backfilling stranded fallback rows first
	lgr.Printf("[INFO] [6/7] persisting...")
	if migrated, err := p.storage.Backfill(ctx); err != nil {
		lgr.Printf("[WARN] backfill failed: %v", err)
	} else {
		counters.Backfilled = migrated
	}

	saved, err := p.storage.Save(ctx, keep)
	if err != nil {
		lgr.Printf("[ERROR] persist failed: %v", err)
	}
	counters.SavedPrimary = len(saved)
	if err := p.storage.Cleanup(ctx); err != nil {
		lgr.Printf("[WARN] fallback cleanup failed: %v", err)
	}
	lgr.Printf("[INFO] stage persist done: %d to primary, %d backfilled", counters.SavedPrimary, counters.Backfilled)

	// stage 7: notify with the saved set
	lgr.Printf("[INFO] [7/7] notifying...")
	notifyRes, err := p.notifier.Notify(ctx, saved)
	if err != nil {
		lgr.Printf("[ERROR] notify failed: %v", err)
	}
	counters.Cards = notifyRes.Cards
	counters.Suppressed = notifyRes.Suppressed

	p.logSummary(&counters, keep, started)
	return counters, nil
}

// collect isolates one collector run; panics are contained as errors
func (p *Pipeline) collect(ctx context.Context, coll collector.Collector) (result []domain.RawCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = lgrRecover(coll.Name(), r)
		}
	}()
	return coll.Collect(ctx)
}

// dedup drops in-run duplicates by canonical URL (earliest wins), then any
// canonical URL already in the primary store within its source window
func (p *Pipeline) dedup(ctx context.Context, all []domain.RawCandidate, counters *Counters) []domain.RawCandidate {
	seen := map[string]bool{}
	inRun := make([]domain.RawCandidate, 0, len(all))
	for _, cand := range all {
		key := urlutil.Canonicalize(cand.URL)
		if key == "" || seen[key] {
			counters.DupInRun++
			continue
		}
		seen[key] = true
		inRun = append(inRun, cand)
	}

	existing := p.storage.ExistingKeys(ctx)
	if len(existing) == 0 {
		return inRun
	}

	now := p.now().UTC()
	kept := make([]domain.RawCandidate, 0, len(inRun))
	for _, cand := range inRun {
		rec, ok := existing[urlutil.Canonicalize(cand.URL)]
		if ok {
			window := p.windows.For(cand.Source)
			if rec.CreatedAt.IsZero() || now.Sub(rec.CreatedAt) <= window {
				counters.DupExisting++
				continue
			}
		}
		kept = append(kept, cand)
	}
	return kept
}

func (p *Pipeline) logSummary(c *Counters, kept []domain.ScoredCandidate, started time.Time) {
	var high, medium int
	var sum float64
	for i := range kept {
		sum += kept[i].TotalScore(p.weights)
		switch kept[i].Priority(p.weights) {
		case domain.PriorityHigh:
			high++
		case domain.PriorityMedium:
			medium++
		}
	}
	avg := 0.0
	if len(kept) > 0 {
		avg = sum / float64(len(kept))
	}

	totalCollected := 0
	for _, n := range c.Collected {
		totalCollected += n
	}

	lgr.Printf("[INFO] ==== benchscope run finished in %v ====", p.now().Sub(started).Round(time.Second))
	lgr.Printf("[INFO]   collected: %d (%d collector errors)", totalCollected, c.CollectErrs)
	lgr.Printf("[INFO]   deduped: %d kept (%d in-run, %d stored)", c.Deduped, c.DupInRun, c.DupExisting)
	lgr.Printf("[INFO]   prefiltered: %d kept", c.Prefiltered)
	lgr.Printf("[INFO]   scored: %d (%d dropped, %d cache hits, %d fallbacks)", c.Scored, c.ScoreDropped, c.CacheHits, c.Fallbacks)
	lgr.Printf("[INFO]   priority: %d high, %d medium, %d low dropped", high, medium, c.LowDropped)
	lgr.Printf("[INFO]   persisted: %d primary, %d backfilled", c.SavedPrimary, c.Backfilled)
	lgr.Printf("[INFO]   notified: %d cards, %d suppressed", c.Cards, c.Suppressed)
	lgr.Printf("[INFO]   average score: %.2f/10", avg)
}

func lgrRecover(name string, r any) error {
	return fmt.Errorf("collector %s panicked: %v", name, r)
}
