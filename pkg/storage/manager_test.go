package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/benchscope/pkg/domain"
)

// stubPrimary scripts the primary store behavior per call
type stubPrimary struct {
	failing  bool
	saved    []domain.ScoredCandidate
	existing []ExistingRecord
}

func (s *stubPrimary) Save(_ context.Context, candidates []domain.ScoredCandidate) ([]domain.ScoredCandidate, error) {
	if s.failing {
		return nil, &APIError{Op: "batch create", Err: assert.AnError}
	}
	s.saved = append(s.saved, candidates...)
	return candidates, nil
}

func (s *stubPrimary) ExistingRecords(_ context.Context) ([]ExistingRecord, error) {
	return s.existing, nil
}

func TestManagerSaveHealthyPrimary(t *testing.T) {
	primary := &stubPrimary{}
	fallback := newTestFallback(t)
	m := NewManager(primary, fallback, 7*24*time.Hour)

	cands := manyCandidates(5)
	saved, err := m.Save(context.Background(), cands)
	require.NoError(t, err)
	assert.Len(t, saved, 5)
	assert.Len(t, primary.saved, 5)

	pending, err := fallback.Unsynced(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending, "nothing diverted when primary is healthy")
}

func TestManagerSaveDivertsToFallback(t *testing.T) {
	// scenario: primary returns 500 for all attempts, all 40 land in fallback
	primary := &stubPrimary{failing: true}
	fallback := newTestFallback(t)
	m := NewManager(primary, fallback, 7*24*time.Hour)

	cands := manyCandidates(40)
	saved, err := m.Save(context.Background(), cands)
	require.NoError(t, err, "divert to fallback is not an error")
	assert.Empty(t, saved)
	assert.Empty(t, primary.saved)

	pending, err := fallback.Unsynced(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 40, "every candidate ends up in a store")
}

func TestManagerBackfill(t *testing.T) {
	// scenario: run 1 diverted rows to fallback, run 2 has a healthy primary
	primary := &stubPrimary{failing: true}
	fallback := newTestFallback(t)
	m := NewManager(primary, fallback, 7*24*time.Hour)

	_, err := m.Save(context.Background(), manyCandidates(40))
	require.NoError(t, err)

	// next run: primary healthy
	primary.failing = false
	migrated, err := m.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, migrated)
	assert.Len(t, primary.saved, 40)

	pending, err := fallback.Unsynced(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending, "all rows transitioned to synced")
}

func TestManagerBackfillKeepsRowsOnFailure(t *testing.T) {
	primary := &stubPrimary{failing: true}
	fallback := newTestFallback(t)
	m := NewManager(primary, fallback, 7*24*time.Hour)

	_, err := m.Save(context.Background(), manyCandidates(3))
	require.NoError(t, err)

	// primary still down, rows must stay unsynced
	_, err = m.Backfill(context.Background())
	require.Error(t, err)

	pending, ferr := fallback.Unsynced(context.Background())
	require.NoError(t, ferr)
	assert.Len(t, pending, 3)
}

func TestManagerBackfillNothingPending(t *testing.T) {
	primary := &stubPrimary{}
	fallback := newTestFallback(t)
	m := NewManager(primary, fallback, 7*24*time.Hour)

	migrated, err := m.Backfill(context.Background())
	require.NoError(t, err)
	assert.Zero(t, migrated)
	assert.Empty(t, primary.saved)
}

func TestManagerExistingKeys(t *testing.T) {
	created := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	primary := &stubPrimary{existing: []ExistingRecord{
		{URLKey: "https://arxiv.org/abs/2401.00001", Source: domain.SourceArxiv, CreatedAt: created},
	}}
	m := NewManager(primary, newTestFallback(t), 7*24*time.Hour)

	keys := m.ExistingKeys(context.Background())
	require.Len(t, keys, 1)
	assert.Equal(t, created, keys["https://arxiv.org/abs/2401.00001"].CreatedAt)
}
