package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/umputun/benchscope/pkg/domain"
	"github.com/umputun/benchscope/pkg/urlutil"
)

// fallbackSchema mirrors ScoredCandidate: the indexed columns cover queries,
// the JSON payload carries the full record for lossless backfill
const fallbackSchema = `
CREATE TABLE IF NOT EXISTS candidates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url_key TEXT UNIQUE NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	source TEXT NOT NULL,
	total_score REAL NOT NULL,
	priority TEXT NOT NULL,
	payload TEXT NOT NULL,
	synced INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_candidates_synced ON candidates (synced);
`

// Fallback is the embedded relational store catching candidates the primary
// could not take; rows migrate back on the next healthy run
type Fallback struct {
	db      *sqlx.DB
	weights domain.ScoreWeights
}

// NewFallback opens (and initializes) the fallback database
func NewFallback(ctx context.Context, dsn string, weights domain.ScoreWeights) (*Fallback, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open fallback db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, fallbackSchema); err != nil {
		return nil, fmt.Errorf("init fallback schema: %w", err)
	}

	return &Fallback{db: db, weights: weights}, nil
}

// Close releases the database handle
func (f *Fallback) Close() error { return f.db.Close() }

// Save stores candidates with synced=false; duplicates by canonical URL are
// ignored, the earlier row wins
func (f *Fallback) Save(ctx context.Context, candidates []domain.ScoredCandidate) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	for i := range candidates {
		cand := &candidates[i]
		payload, err := json.Marshal(cand)
		if err != nil {
			return fmt.Errorf("serialize candidate %q: %w", cand.Title, err)
		}
		total := cand.TotalScore(f.weights)

		err = retrier.Do(ctx, func() error {
			_, execErr := f.db.ExecContext(ctx, `
				INSERT OR IGNORE INTO candidates (url_key, url, title, source, total_score, priority, payload)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				urlutil.Canonicalize(cand.URL), cand.URL, cand.Title, string(cand.Source),
				total, string(domain.PriorityFor(total)), string(payload))
			return execErr
		})
		if err != nil {
			return fmt.Errorf("insert fallback candidate %q: %w", cand.Title, err)
		}
	}

	lgr.Printf("[INFO] fallback store saved %d candidates", len(candidates))
	return nil
}

// Unsynced returns candidates not yet migrated to the primary store
func (f *Fallback) Unsynced(ctx context.Context) ([]domain.ScoredCandidate, error) {
	var rows []struct {
		Payload string `db:"payload"`
	}
	if err := f.db.SelectContext(ctx, &rows, `SELECT payload FROM candidates WHERE synced = 0 ORDER BY id`); err != nil {
		return nil, fmt.Errorf("select unsynced: %w", err)
	}

	candidates := make([]domain.ScoredCandidate, 0, len(rows))
	for _, row := range rows {
		var cand domain.ScoredCandidate
		if err := json.Unmarshal([]byte(row.Payload), &cand); err != nil {
			lgr.Printf("[WARN] corrupt fallback payload skipped: %v", err)
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// MarkSynced flips the sync flag for successfully migrated rows
func (f *Fallback) MarkSynced(ctx context.Context, urls []string) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	for _, u := range urls {
		key := urlutil.Canonicalize(u)
		err := retrier.Do(ctx, func() error {
			_, execErr := f.db.ExecContext(ctx, `UPDATE candidates SET synced = 1 WHERE url_key = ?`, key)
			return execErr
		})
		if err != nil {
			return fmt.Errorf("mark synced %s: %w", key, err)
		}
	}
	return nil
}

// Cleanup purges synced rows older than the retention period
func (f *Fallback) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	// CURRENT_TIMESTAMP stores "YYYY-MM-DD HH:MM:SS" in UTC, compare in kind
	cutoff := time.Now().UTC().Add(-retention).Format("2006-01-02 15:04:05")
	res, err := f.db.ExecContext(ctx,
		`DELETE FROM candidates WHERE synced = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup fallback: %w", err)
	}
	purged, _ := res.RowsAffected()
	if purged > 0 {
		lgr.Printf("[INFO] fallback store purged %d synced rows older than %v", purged, retention)
	}
	return purged, nil
}

// UnsyncedCount reports how many rows await migration
func (f *Fallback) UnsyncedCount(ctx context.Context) (int, error) {
	var count int
	if err := f.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM candidates WHERE synced = 0`); err != nil {
		return 0, fmt.Errorf("count unsynced: %w", err)
	}
	return count, nil
}
