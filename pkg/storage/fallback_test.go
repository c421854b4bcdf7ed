package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/benchscope/pkg/domain"
)

func newTestFallback(t *testing.T) *Fallback {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "fallback.db") + "?cache=shared&mode=rwc"
	f, err := NewFallback(context.Background(), dsn, domain.DefaultWeights)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func scoredCandidate(url string) domain.ScoredCandidate {
	return domain.ScoredCandidate{
		RawCandidate: domain.RawCandidate{
			Title:    "Some Benchmark",
			URL:      url,
			Source:   domain.SourceArxiv,
			Abstract: "abstract text",
		},
		Scores: domain.Scores{
			Activity: 8, Reproducibility: 8, License: 8, Novelty: 8, Relevance: 8,
			OverallReasoning: "solid benchmark",
			TaskDomain:       "Coding",
		},
	}
}

func TestFallbackSaveAndUnsynced(t *testing.T) {
	f := newTestFallback(t)
	ctx := context.Background()

	cands := []domain.ScoredCandidate{
		scoredCandidate("https://arxiv.org/abs/2401.00001"),
		scoredCandidate("https://arxiv.org/abs/2401.00002"),
	}
	require.NoError(t, f.Save(ctx, cands))

	pending, err := f.Unsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "https://arxiv.org/abs/2401.00001", pending[0].URL)
	assert.Equal(t, 8.0, pending[0].Activity, "scores survive the round trip")
	assert.Equal(t, "Coding", pending[0].TaskDomain)

	count, err := f.UnsyncedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFallbackUniqueByCanonicalURL(t *testing.T) {
	f := newTestFallback(t)
	ctx := context.Background()

	// same paper, different version suffixes
	c1 := scoredCandidate("https://arxiv.org/abs/2401.00001v1")
	c2 := scoredCandidate("https://arxiv.org/abs/2401.00001v2")
	require.NoError(t, f.Save(ctx, []domain.ScoredCandidate{c1, c2}))

	pending, err := f.Unsynced(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "canonical URL unique constraint")
}

func TestFallbackMarkSyncedAndCleanup(t *testing.T) {
	f := newTestFallback(t)
	ctx := context.Background()

	cands := []domain.ScoredCandidate{
		scoredCandidate("https://arxiv.org/abs/2401.00001"),
		scoredCandidate("https://arxiv.org/abs/2401.00002"),
	}
	require.NoError(t, f.Save(ctx, cands))
	require.NoError(t, f.MarkSynced(ctx, []string{"https://arxiv.org/abs/2401.00001"}))

	pending, err := f.Unsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "https://arxiv.org/abs/2401.00002", pending[0].URL)

	// synced rows are only purged past retention; a fresh row stays
	purged, err := f.Cleanup(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, purged)

	// a negative retention moves the cutoff past now, purging the synced row
	// but keeping the unsynced one
	purged, err = f.Cleanup(ctx, -time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	count, err := f.UnsyncedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
