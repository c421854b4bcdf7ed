package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/umputun/benchscope/pkg/urlutil"
)

// historySchema is keyed on canonical URL; rows are never expired, a URL that
// reached the notify threshold stays suppressed permanently
const historySchema = `
CREATE TABLE IF NOT EXISTS notification_history (
	url_key TEXT PRIMARY KEY,
	notify_count INTEGER NOT NULL DEFAULT 0,
	first_notified TIMESTAMP,
	last_notified TIMESTAMP,
	title TEXT NOT NULL DEFAULT ''
);
`

// History tracks how many times each canonical URL has been surfaced
type History struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewHistory opens (and initializes) the notification history database
func NewHistory(ctx context.Context, dsn string) (*History, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &History{db: db, now: time.Now}, nil
}

// Close releases the database handle
func (h *History) Close() error { return h.db.Close() }

// Count returns the notify count for a URL, zero when never notified
func (h *History) Count(ctx context.Context, rawURL string) (int, error) {
	key := urlutil.Canonicalize(rawURL)
	if key == "" {
		return 0, nil
	}

	var count int
	err := h.db.GetContext(ctx, &count,
		`SELECT notify_count FROM notification_history WHERE url_key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get notify count: %w", err)
	}
	return count, nil
}

// Increment bumps the notify count for a URL, inserting the row on first
// notification, and returns the new count
func (h *History) Increment(ctx context.Context, rawURL, title string) (int, error) {
	key := urlutil.Canonicalize(rawURL)
	if key == "" {
		return 0, nil
	}
	now := h.now().UTC()

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	err := retrier.Do(ctx, func() error {
		_, execErr := h.db.ExecContext(ctx, `
			INSERT INTO notification_history (url_key, notify_count, first_notified, last_notified, title)
			VALUES (?, 1, ?, ?, ?)
			ON CONFLICT(url_key) DO UPDATE SET
				notify_count = notify_count + 1,
				last_notified = excluded.last_notified,
				title = CASE WHEN excluded.title != '' THEN excluded.title ELSE title END`,
			key, now, now, title)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("increment notify count for %s: %w", key, err)
	}

	var count int
	if err := h.db.GetContext(ctx, &count,
		`SELECT notify_count FROM notification_history WHERE url_key = ?`, key); err != nil {
		return 0, fmt.Errorf("read notify count after increment: %w", err)
	}
	return count, nil
}

// Stats reports totals for the run summary log
func (h *History) Stats(ctx context.Context) (tracked, maxCount int, err error) {
	row := struct {
		Tracked  int `db:"tracked"`
		MaxCount int `db:"max_count"`
	}{}
	err = h.db.GetContext(ctx, &row,
		`SELECT COUNT(*) AS tracked, COALESCE(MAX(notify_count), 0) AS max_count FROM notification_history`)
	if err != nil {
		return 0, 0, fmt.Errorf("history stats: %w", err)
	}
	return row.Tracked, row.MaxCount, nil
}
