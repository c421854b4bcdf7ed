package storage

import (
	"context"
	"errors"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/benchscope/pkg/domain"
)

// Primary is the spreadsheet backend as the manager sees it
type Primary interface {
	Save(ctx context.Context, candidates []domain.ScoredCandidate) ([]domain.ScoredCandidate, error)
	ExistingRecords(ctx context.Context) ([]ExistingRecord, error)
}

// FallbackStore is the embedded store as the manager sees it
type FallbackStore interface {
	Save(ctx context.Context, candidates []domain.ScoredCandidate) error
	Unsynced(ctx context.Context) ([]domain.ScoredCandidate, error)
	MarkSynced(ctx context.Context, urls []string) error
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// Manager guarantees every candidate passed to Save lands in one of the two
// stores, primary preferred
type Manager struct {
	primary   Primary
	fallback  FallbackStore
	retention time.Duration
}

// NewManager wires the primary store with its fallback
func NewManager(primary Primary, fallback FallbackStore, retention time.Duration) *Manager {
	return &Manager{primary: primary, fallback: fallback, retention: retention}
}

// Save writes to the primary store and diverts everything the primary did
// not take to the fallback. Returns the candidates that reached the primary.
func (m *Manager) Save(ctx context.Context, candidates []domain.ScoredCandidate) ([]domain.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	saved, err := m.primary.Save(ctx, candidates)
	if err == nil {
		return saved, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		lgr.Printf("[WARN] primary store failed (%v), diverting to fallback", apiErr)
	} else {
		lgr.Printf("[WARN] primary store failed: %v, diverting to fallback", err)
	}

	// divert what the primary didn't confirm; partial batches keep their
	// written prefix in the primary
	written := make(map[string]bool, len(saved))
	for i := range saved {
		written[saved[i].URL] = true
	}
	var divert []domain.ScoredCandidate
	for i := range candidates {
		if !written[candidates[i].URL] {
			divert = append(divert, candidates[i])
		}
	}

	if ferr := m.fallback.Save(ctx, divert); ferr != nil {
		// both stores failed, surface the primary error with the count lost
		lgr.Printf("[ERROR] fallback store also failed for %d candidates: %v", len(divert), ferr)
		return saved, errors.Join(err, ferr)
	}

	lgr.Printf("[INFO] diverted %d candidates to fallback store", len(divert))
	return saved, nil
}

// Backfill pushes previously-unsynced fallback rows to the primary and marks
// them synced on success. Returns the number migrated.
func (m *Manager) Backfill(ctx context.Context) (int, error) {
	pending, err := m.fallback.Unsynced(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	lgr.Printf("[INFO] backfilling %d unsynced fallback rows", len(pending))

	saved, err := m.primary.Save(ctx, pending)
	if err != nil {
		lgr.Printf("[WARN] backfill failed, rows stay in fallback: %v", err)
		return 0, err
	}

	// the primary dedups rows already present from a prior partial save; both
	// saved and deduplicated rows are migrated from the fallback's view
	urls := make([]string, 0, len(pending))
	for i := range pending {
		urls = append(urls, pending[i].URL)
	}
	if err := m.fallback.MarkSynced(ctx, urls); err != nil {
		return len(saved), err
	}
	return len(pending), nil
}

// Cleanup purges expired synced fallback rows
func (m *Manager) Cleanup(ctx context.Context) error {
	_, err := m.fallback.Cleanup(ctx, m.retention)
	return err
}

// ExistingKeys returns canonical URL -> stored record (source, creation time) for all rows in the
// primary store, used by the orchestrator's cross-run dedup stage. A lookup
// failure yields an empty map so the run can proceed.
func (m *Manager) ExistingKeys(ctx context.Context) map[string]ExistingRecord {
	records, err := m.primary.ExistingRecords(ctx)
	if err != nil {
		lgr.Printf("[WARN] existing-records lookup failed, dedup degraded: %v", err)
		return map[string]ExistingRecord{}
	}
	keys := make(map[string]ExistingRecord, len(records))
	for _, rec := range records {
		keys[rec.URLKey] = rec
	}
	return keys
}
